// internal/cdr/encoder.go
package cdr

import (
	"encoding/binary"
	"math"

	"orb-server/internal/cachetable"
)

const indirectionTag = 0xffffffff

const (
	BigEndian    byte = 0
	LittleEndian byte = 1
)

// Encoder writes CDR primitives with natural alignment relative to the
// start of its buffer.
type Encoder struct {
	buf   []byte
	order binary.AppendByteOrder
	ids   *cachetable.Table[string]
}

// NewEncoder returns a big-endian encoder for a raw stream (no byte order octet).
func NewEncoder() *Encoder {
	return &Encoder{order: binary.BigEndian}
}

// NewEncapsulation returns an encoder whose first octet is the byte order flag.
func NewEncapsulation() *Encoder {
	e := NewEncoder()
	e.WriteOctet(BigEndian)
	return e
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) align(n int) {
	for len(e.buf)%n != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) WriteOctet(v byte) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteOctet(1)
		return
	}
	e.WriteOctet(0)
}

func (e *Encoder) WriteUShort(v uint16) {
	e.align(2)
	e.buf = e.order.AppendUint16(e.buf, v)
}

func (e *Encoder) WriteULong(v uint32) {
	e.align(4)
	e.buf = e.order.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteLong(v int32) {
	e.WriteULong(uint32(v))
}

func (e *Encoder) WriteULongLong(v uint64) {
	e.align(8)
	e.buf = e.order.AppendUint64(e.buf, v)
}

func (e *Encoder) WriteDouble(v float64) {
	e.WriteULongLong(math.Float64bits(v))
}

// WriteString writes a CDR string: ulong length including the NUL, bytes, NUL.
func (e *Encoder) WriteString(s string) {
	e.WriteULong(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

func (e *Encoder) WriteOctets(b []byte) {
	e.WriteULong(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *Encoder) WriteStringSeq(ss []string) {
	e.WriteULong(uint32(len(ss)))
	for _, s := range ss {
		e.WriteString(s)
	}
}

// WriteEncapsulation writes a nested encapsulation as an octet sequence.
func (e *Encoder) WriteEncapsulation(fn func(*Encoder)) {
	nested := NewEncapsulation()
	fn(nested)
	e.WriteOctets(nested.Bytes())
}

// WriteRepositoryID writes id, or an indirection to its first occurrence in
// this stream.
func (e *Encoder) WriteRepositoryID(id string) error {
	if e.ids == nil {
		e.ids = cachetable.New[string]()
	}
	e.align(4)
	if offset, ok := e.ids.GetVal(id); ok {
		e.WriteULong(indirectionTag)
		// relative to the position of the offset field itself
		e.WriteLong(int32(offset - len(e.buf)))
		return nil
	}
	if err := e.ids.Put(id, len(e.buf)); err != nil {
		return err
	}
	e.WriteString(id)
	return nil
}
