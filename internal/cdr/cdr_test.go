package cdr

import (
	"errors"
	"testing"
)

func TestPrimitivesAlignment(t *testing.T) {
	e := NewEncoder()
	e.WriteOctet(7)
	e.WriteULong(0x01020304)
	e.WriteUShort(9)
	e.WriteULongLong(42)
	e.WriteBool(true)
	e.WriteString("abc")
	e.WriteDouble(1.5)

	// octet + 3 pad + ulong + ushort + 2 pad + ulonglong
	if got := e.Bytes()[1:4]; got[0] != 0 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("expected padding after octet, got %v", got)
	}

	d := NewDecoder(e.Bytes())
	if v, err := d.ReadOctet(); err != nil || v != 7 {
		t.Fatalf("octet = %d, %v", v, err)
	}
	if v, err := d.ReadULong(); err != nil || v != 0x01020304 {
		t.Fatalf("ulong = %x, %v", v, err)
	}
	if v, err := d.ReadUShort(); err != nil || v != 9 {
		t.Fatalf("ushort = %d, %v", v, err)
	}
	if v, err := d.ReadULongLong(); err != nil || v != 42 {
		t.Fatalf("ulonglong = %d, %v", v, err)
	}
	if v, err := d.ReadBool(); err != nil || !v {
		t.Fatalf("bool = %v, %v", v, err)
	}
	if v, err := d.ReadString(); err != nil || v != "abc" {
		t.Fatalf("string = %q, %v", v, err)
	}
	if v, err := d.ReadDouble(); err != nil || v != 1.5 {
		t.Fatalf("double = %v, %v", v, err)
	}
	if d.Remaining() != 0 {
		t.Fatalf("expected stream fully consumed, %d left", d.Remaining())
	}
}

func TestUnderflowAndMalformed(t *testing.T) {
	t.Run("short ulong", func(t *testing.T) {
		d := NewDecoder([]byte{0, 0})
		if _, err := d.ReadULong(); !errors.Is(err, ErrUnderflow) {
			t.Fatalf("expected ErrUnderflow, got %v", err)
		}
	})
	t.Run("missing NUL", func(t *testing.T) {
		d := NewDecoder([]byte{0, 0, 0, 2, 'a', 'b'})
		if _, err := d.ReadString(); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed, got %v", err)
		}
	})
	t.Run("bad byte order", func(t *testing.T) {
		if _, err := NewEncapsulationDecoder([]byte{5}); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed, got %v", err)
		}
	})
}

func TestEncapsulationRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteOctet(1)
	e.WriteEncapsulation(func(n *Encoder) {
		n.WriteString("host")
		n.WriteUShort(2809)
	})

	d := NewDecoder(e.Bytes())
	_, _ = d.ReadOctet()
	inner, err := d.ReadEncapsulation()
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := inner.ReadString(); s != "host" {
		t.Fatalf("host = %q", s)
	}
	if p, _ := inner.ReadUShort(); p != 2809 {
		t.Fatalf("port = %d", p)
	}
}

func TestLittleEndianEncapsulation(t *testing.T) {
	raw := []byte{LittleEndian, 0, 0, 0, 0x04, 0x03, 0x02, 0x01}
	d, err := NewEncapsulationDecoder(raw)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := d.ReadULong(); v != 0x01020304 {
		t.Fatalf("little endian ulong = %x", v)
	}
}

func TestRepositoryIDIndirection(t *testing.T) {
	e := NewEncoder()
	ids := []string{"IDL:Echo:1.0", "IDL:Other:1.0", "IDL:Echo:1.0", "IDL:Echo:1.0"}
	for _, id := range ids {
		if err := e.WriteRepositoryID(id); err != nil {
			t.Fatal(err)
		}
		e.WriteOctet(0xAA)
	}
	first := len(e.Bytes())

	plain := NewEncoder()
	for _, id := range ids {
		plain.WriteString(id)
		plain.WriteOctet(0xAA)
	}
	if first >= len(plain.Bytes()) {
		t.Fatalf("indirection did not shrink the stream: %d vs %d", first, len(plain.Bytes()))
	}

	d := NewDecoder(e.Bytes())
	for i, want := range ids {
		got, err := d.ReadRepositoryID()
		if err != nil {
			t.Fatalf("id %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("id %d = %q, want %q", i, got, want)
		}
		if b, _ := d.ReadOctet(); b != 0xAA {
			t.Fatalf("marker %d = %x", i, b)
		}
	}
}

func TestDanglingIndirection(t *testing.T) {
	e := NewEncoder()
	e.WriteULong(indirectionTag)
	e.WriteLong(-4)
	d := NewDecoder(e.Bytes())
	if _, err := d.ReadRepositoryID(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRepeatedLiteralRepositoryID(t *testing.T) {
	const id = "IDL:omg.org/CORBA/Object:1.0"
	e := NewEncoder()
	e.WriteString(id)
	second := (e.Len() + 3) &^ 3
	e.WriteString(id)
	e.WriteULong(indirectionTag)
	field := e.Len()
	e.WriteLong(int32(second - field))

	d := NewDecoder(e.Bytes())
	for i := 0; i < 3; i++ {
		got, err := d.ReadRepositoryID()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got != id {
			t.Fatalf("read %d = %q", i, got)
		}
	}
}
