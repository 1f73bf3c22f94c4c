package poa

import (
	"context"

	"orb-server/internal/cdr"
	"orb-server/internal/handler"
	"orb-server/internal/protocol"
)

type Operation func(ctx context.Context, in *cdr.Decoder, out *cdr.Encoder) error

// Skeleton is a servant whose operations are looked up by name.
type Skeleton struct {
	ids []string
	ops *handler.Registry[string, Operation]
}

func NewSkeleton(repositoryIDs ...string) *Skeleton {
	return &Skeleton{
		ids: repositoryIDs,
		ops: handler.NewRegistry[string, Operation](),
	}
}

func (s *Skeleton) Handle(op string, fn Operation) error {
	return s.ops.Register(op, fn)
}

func (s *Skeleton) MustHandle(op string, fn Operation) *Skeleton {
	if err := s.Handle(op, fn); err != nil {
		panic(err)
	}
	return s
}

func (s *Skeleton) RepositoryIDs() []string {
	return s.ids
}

func (s *Skeleton) Operations() []string {
	return s.ops.Keys()
}

func (s *Skeleton) Invoke(ctx context.Context, op string, in *cdr.Decoder, out *cdr.Encoder) error {
	fn, ok := s.ops.Get(op)
	if !ok {
		return protocol.UnknownOperation(op)
	}
	return fn(ctx, in, out)
}
