// internal/cdr/decoder.go
package cdr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"orb-server/internal/cachetable"
)

var (
	ErrUnderflow = errors.New("cdr: read past end of buffer")
	ErrMalformed = errors.New("cdr: malformed input")
)

// maxSeqLen bounds sequence lengths read from the wire before allocating.
const maxSeqLen = 1 << 24

type Decoder struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
	ids   *cachetable.Table[string]
}

// NewDecoder reads a raw big-endian stream.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b, order: binary.BigEndian}
}

// NewEncapsulationDecoder consumes the leading byte order octet.
func NewEncapsulationDecoder(b []byte) (*Decoder, error) {
	d := NewDecoder(b)
	flag, err := d.ReadOctet()
	if err != nil {
		return nil, err
	}
	switch flag {
	case BigEndian:
	case LittleEndian:
		d.order = binary.LittleEndian
	default:
		return nil, fmt.Errorf("%w: byte order flag %d", ErrMalformed, flag)
	}
	return d, nil
}

func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

func (d *Decoder) align(n int) error {
	for d.pos%n != 0 {
		if d.pos >= len(d.buf) {
			return ErrUnderflow
		}
		d.pos++
	}
	return nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, ErrUnderflow
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadOctet() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadOctet()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: boolean octet %d", ErrMalformed, b)
	}
}

func (d *Decoder) ReadUShort() (uint16, error) {
	if err := d.align(2); err != nil {
		return 0, err
	}
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return d.order.Uint16(b), nil
}

func (d *Decoder) ReadULong() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return d.order.Uint32(b), nil
}

func (d *Decoder) ReadLong() (int32, error) {
	v, err := d.ReadULong()
	return int32(v), err
}

func (d *Decoder) ReadULongLong() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return d.order.Uint64(b), nil
}

func (d *Decoder) ReadDouble() (float64, error) {
	v, err := d.ReadULongLong()
	return math.Float64frombits(v), err
}

func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadULong()
	if err != nil {
		return "", err
	}
	return d.readStringBody(n)
}

func (d *Decoder) readStringBody(n uint32) (string, error) {
	if n == 0 {
		return "", fmt.Errorf("%w: zero string length", ErrMalformed)
	}
	if n > maxSeqLen {
		return "", fmt.Errorf("%w: string length %d", ErrMalformed, n)
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	if b[n-1] != 0 {
		return "", fmt.Errorf("%w: string not NUL terminated", ErrMalformed)
	}
	return string(b[:n-1]), nil
}

func (d *Decoder) ReadOctets() ([]byte, error) {
	n, err := d.ReadULong()
	if err != nil {
		return nil, err
	}
	if n > maxSeqLen {
		return nil, fmt.Errorf("%w: sequence length %d", ErrMalformed, n)
	}
	b, err := d.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (d *Decoder) ReadStringSeq() ([]string, error) {
	n, err := d.ReadULong()
	if err != nil {
		return nil, err
	}
	if int(n) > d.Remaining() {
		return nil, ErrUnderflow
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadEncapsulation reads an octet sequence and returns a decoder over it.
func (d *Decoder) ReadEncapsulation() (*Decoder, error) {
	b, err := d.ReadOctets()
	if err != nil {
		return nil, err
	}
	return NewEncapsulationDecoder(b)
}

// ReadRepositoryID reads an id written by Encoder.WriteRepositoryID.
func (d *Decoder) ReadRepositoryID() (string, error) {
	if d.ids == nil {
		d.ids = cachetable.New[string]()
	}
	if err := d.align(4); err != nil {
		return "", err
	}
	start := d.pos
	n, err := d.ReadULong()
	if err != nil {
		return "", err
	}
	if n == indirectionTag {
		field := d.pos
		rel, err := d.ReadLong()
		if err != nil {
			return "", err
		}
		target := field + int(rel)
		id, ok := d.ids.GetKey(target)
		if !ok {
			return "", fmt.Errorf("%w: dangling indirection to %d", ErrMalformed, target)
		}
		return id, nil
	}
	id, err := d.readStringBody(n)
	if err != nil {
		return "", err
	}
	d.ids.PutInverse(start, id)
	return id, nil
}
