// internal/dispatch/mediator.go
package dispatch

import (
	"context"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
)

// Mediator carries one incoming request. The last reply created through
// its protocol.Replier methods is the one sent.
type Mediator interface {
	protocol.Replier
	Context() context.Context
	RequestID() uint32
	Operation() string
	ObjectKey() *ior.ObjectKey
	// Input is positioned after the object key.
	Input() *cdr.Decoder
	// Stack belongs to the worker running this request.
	Stack() *oa.Stack
}

type RequestDispatcher interface {
	// Dispatch writes a reply through m. A returned error has not been
	// turned into a reply yet.
	Dispatch(m Mediator) error
	// Locate returns a forward target, or nil when the object is here.
	Locate(key *ior.ObjectKey) (*ior.IOR, error)
}

// outcomeTracker remembers which kind of reply was created.
type outcomeTracker struct {
	Mediator
	status  protocol.ReplyStatus
	replied bool
}

func (t *outcomeTracker) CreateReply() *cdr.Encoder {
	t.status, t.replied = protocol.ReplyNoException, true
	return t.Mediator.CreateReply()
}

func (t *outcomeTracker) CreateSystemExceptionReply(ex *protocol.SystemException) {
	t.status, t.replied = protocol.ReplySystemException, true
	t.Mediator.CreateSystemExceptionReply(ex)
}

func (t *outcomeTracker) CreateLocationForward(target *ior.IOR) {
	t.status, t.replied = protocol.ReplyLocationForward, true
	t.Mediator.CreateLocationForward(target)
}

func (t *outcomeTracker) outcome() string {
	if !t.replied {
		return "none"
	}
	switch t.status {
	case protocol.ReplyNoException:
		return "no_exception"
	case protocol.ReplySystemException:
		return "system_exception"
	case protocol.ReplyLocationForward:
		return "location_forward"
	default:
		return "user_exception"
	}
}
