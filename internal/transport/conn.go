package transport

import "time"

// Conn is a framed, bidirectional GIOP-style connection. WriteFrame is
// safe for concurrent use; ReadFrame is owned by a single reader.
type Conn interface {
	ReadFrame() (*Frame, error)
	WriteFrame(*Frame) error
	RemoteAddr() string
	Close() error
}

type ConnOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxFrameSize    int
	// WriteTimeout bounds a single WriteFrame. Zero means no deadline.
	WriteTimeout time.Duration
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = defaultBufferSize
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = defaultBufferSize
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	return o
}

func (o ConnOptions) writeDeadline() time.Time {
	if o.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(o.WriteTimeout)
}
