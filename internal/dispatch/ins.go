package dispatch

import (
	"go.uber.org/zap"

	"orb-server/internal/ior"
	"orb-server/internal/protocol"
	"orb-server/internal/resolver"
)

// INS answers well-known string keys with a location forward. It never
// invokes anything, and an unknown key is a hard OBJECT_NOT_EXIST fault.
type INS struct {
	refs   resolver.LocalResolver
	logger *zap.Logger
}

func NewINS(refs resolver.LocalResolver, logger *zap.Logger) *INS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &INS{refs: refs, logger: logger}
}

func (d *INS) Locate(key *ior.ObjectKey) (*ior.IOR, error) {
	name := string(key.Bytes())
	ref := d.refs.Resolve(name)
	if ref == nil {
		d.logger.Debug("ins key not found", zap.String("key", name))
		return nil, protocol.InsObjectNotFound(name)
	}
	return ref, nil
}

func (d *INS) Dispatch(m Mediator) error {
	defer recoverToReply(m, d.logger)

	ref, err := d.Locate(m.ObjectKey())
	if err != nil {
		return err
	}
	m.CreateLocationForward(ref)
	return nil
}
