package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"orb-server/internal/protocol"
)

const DefaultMaxFrameSize = 16 << 20

var (
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrMalformedFrame = errors.New("malformed frame")
)

// Frame is one GIOP-style message. Body holds the CDR-encoded arguments,
// reply results or exception.
type Frame struct {
	Type             protocol.MsgType
	RequestID        uint32
	ResponseExpected bool
	ObjectKey        []byte
	Operation        string
	Status           int32
	Body             []byte
	TraceID          string
}

const (
	fieldType protowire.Number = iota + 1
	fieldRequestID
	fieldResponseExpected
	fieldObjectKey
	fieldOperation
	fieldStatus
	fieldBody
	fieldTraceID
)

func (f *Frame) Marshal() []byte {
	b := make([]byte, 0, 32+len(f.ObjectKey)+len(f.Operation)+len(f.Body))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Type))
	b = protowire.AppendTag(b, fieldRequestID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.RequestID))
	if f.ResponseExpected {
		b = protowire.AppendTag(b, fieldResponseExpected, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if len(f.ObjectKey) > 0 {
		b = protowire.AppendTag(b, fieldObjectKey, protowire.BytesType)
		b = protowire.AppendBytes(b, f.ObjectKey)
	}
	if f.Operation != "" {
		b = protowire.AppendTag(b, fieldOperation, protowire.BytesType)
		b = protowire.AppendString(b, f.Operation)
	}
	if f.Status != 0 {
		b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(f.Status)))
	}
	if len(f.Body) > 0 {
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Body)
	}
	if f.TraceID != "" {
		b = protowire.AppendTag(b, fieldTraceID, protowire.BytesType)
		b = protowire.AppendString(b, f.TraceID)
	}
	return b
}

func UnmarshalFrame(b []byte) (*Frame, error) {
	f := &Frame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: tag: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && (num == fieldType || num == fieldRequestID || num == fieldResponseExpected || num == fieldStatus):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldType:
				f.Type = protocol.MsgType(v)
			case fieldRequestID:
				f.RequestID = uint32(v)
			case fieldResponseExpected:
				f.ResponseExpected = v != 0
			case fieldStatus:
				f.Status = int32(uint32(v))
			}
		case typ == protowire.BytesType && (num == fieldObjectKey || num == fieldOperation || num == fieldBody || num == fieldTraceID):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldObjectKey:
				f.ObjectKey = append([]byte(nil), v...)
			case fieldOperation:
				f.Operation = string(v)
			case fieldBody:
				f.Body = append([]byte(nil), v...)
			case fieldTraceID:
				f.TraceID = string(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return f, nil
}

func ReadFrame(r io.Reader, maxSize int) (*Frame, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(sizeBuf[:])
	if maxSize > 0 && int(size) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return UnmarshalFrame(data)
}

func WriteFrame(w io.Writer, f *Frame) error {
	data := f.Marshal()

	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(data)))

	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
