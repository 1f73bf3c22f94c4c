package protocol

import (
	"orb-server/internal/cdr"
	"orb-server/internal/ior"
)

// Replier builds the single reply for a request. CreateReply returns the
// body encoder of a NO_EXCEPTION reply; the caller marshals results into it.
type Replier interface {
	CreateReply() *cdr.Encoder
	CreateSystemExceptionReply(ex *SystemException)
	CreateLocationForward(target *ior.IOR)
}
