// Package prototest provides a reply recorder for dispatch tests.
package prototest

import (
	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/protocol"
)

// Recorder keeps the last reply created through it.
type Recorder struct {
	Status    protocol.ReplyStatus
	Created   int
	Body      *cdr.Encoder
	Exception *protocol.SystemException
	Forward   *ior.IOR
}

func (r *Recorder) CreateReply() *cdr.Encoder {
	r.Created++
	r.Status = protocol.ReplyNoException
	r.Body = cdr.NewEncoder()
	r.Exception, r.Forward = nil, nil
	return r.Body
}

func (r *Recorder) CreateSystemExceptionReply(ex *protocol.SystemException) {
	r.Created++
	r.Status = protocol.ReplySystemException
	r.Exception = ex
	r.Body, r.Forward = nil, nil
}

func (r *Recorder) CreateLocationForward(target *ior.IOR) {
	r.Created++
	r.Status = protocol.ReplyLocationForward
	r.Forward = target
	r.Body, r.Exception = nil, nil
}

// Replied reports whether any reply was created.
func (r *Recorder) Replied() bool {
	return r.Created > 0
}

// Decoder reads the body of a NO_EXCEPTION reply.
func (r *Recorder) Decoder() *cdr.Decoder {
	if r.Body == nil {
		return cdr.NewDecoder(nil)
	}
	return cdr.NewDecoder(r.Body.Bytes())
}

func (r *Recorder) Bool() (bool, error) {
	return r.Decoder().ReadBool()
}
