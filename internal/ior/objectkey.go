// internal/ior/objectkey.go
package ior

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/blang/semver"

	"orb-server/internal/cdr"
)

// POAMagic prefixes every key this ORB mints for an object adapter.
const POAMagic uint32 = 0xAFABCAFF

// BootstrapKeyName is the raw key the bootstrap service listens on.
const BootstrapKeyName = "INIT"

var ErrMalformedKey = errors.New("malformed object key")

// ORBVersion is stamped into every adapter key template.
var ORBVersion = semver.MustParse("1.0.0")

type ObjectID []byte

func (id ObjectID) String() string {
	return string(id)
}

// AdapterID is the path of adapter names from the root adapter.
type AdapterID []string

func (a AdapterID) String() string {
	return strings.Join(a, "/")
}

func (a AdapterID) Equal(b AdapterID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Child returns a new path with name appended.
func (a AdapterID) Child(name string) AdapterID {
	out := make(AdapterID, len(a), len(a)+1)
	copy(out, a)
	return append(out, name)
}

type KeyKind int

const (
	KindPOA KeyKind = iota
	KindBootstrap
	KindWire
)

func (k KeyKind) String() string {
	switch k {
	case KindPOA:
		return "poa"
	case KindBootstrap:
		return "bootstrap"
	case KindWire:
		return "wire"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ObjectKeyTemplate carries what is needed to find the owning adapter again.
// Only POA templates populate the routing fields.
type ObjectKeyTemplate struct {
	Kind          KeyKind
	SubcontractID uint32
	ServerID      int32
	ORBID         string
	Version       semver.Version
	Adapter       AdapterID
}

func NewPOATemplate(serverID int32, orbID string, adapter AdapterID) ObjectKeyTemplate {
	return ObjectKeyTemplate{
		Kind:     KindPOA,
		ServerID: serverID,
		ORBID:    orbID,
		Version:  ORBVersion,
		Adapter:  adapter,
	}
}

// ObjectKey is immutable once built. The zero value is not usable.
type ObjectKey struct {
	template ObjectKeyTemplate
	id       ObjectID
	raw      []byte
}

// NewObjectKey builds a POA key and encodes it once.
func NewObjectKey(t ObjectKeyTemplate, id ObjectID) *ObjectKey {
	t.Adapter = append(AdapterID(nil), t.Adapter...)
	k := &ObjectKey{template: t, id: append(ObjectID(nil), id...)}

	enc := cdr.NewEncoder()
	enc.WriteULong(POAMagic)
	enc.WriteULong(t.SubcontractID)
	enc.WriteLong(t.ServerID)
	enc.WriteString(t.ORBID)
	enc.WriteString(t.Version.String())
	enc.WriteStringSeq(t.Adapter)
	enc.WriteOctets(k.id)
	k.raw = enc.Bytes()
	return k
}

// NewWireKey builds a key whose raw bytes are a well-known name.
func NewWireKey(name string) *ObjectKey {
	kind := KindWire
	if name == BootstrapKeyName {
		kind = KindBootstrap
	}
	return &ObjectKey{
		template: ObjectKeyTemplate{Kind: kind},
		id:       ObjectID(name),
		raw:      []byte(name),
	}
}

func BootstrapKey() *ObjectKey {
	return NewWireKey(BootstrapKeyName)
}

// ParseObjectKey classifies raw key bytes. Keys without the POA magic are
// foreign and kept verbatim.
func ParseObjectKey(raw []byte) (*ObjectKey, error) {
	if bytes.Equal(raw, []byte(BootstrapKeyName)) {
		return BootstrapKey(), nil
	}
	if len(raw) < 4 || binary.BigEndian.Uint32(raw) != POAMagic {
		return NewWireKey(string(raw)), nil
	}

	d := cdr.NewDecoder(raw)
	_, _ = d.ReadULong()
	t := ObjectKeyTemplate{Kind: KindPOA}
	var err error
	if t.SubcontractID, err = d.ReadULong(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if t.ServerID, err = d.ReadLong(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if t.ORBID, err = d.ReadString(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	ver, err := d.ReadString()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if t.Version, err = semver.Parse(ver); err != nil {
		return nil, fmt.Errorf("%w: orb version %q: %v", ErrMalformedKey, ver, err)
	}
	if t.Version.Major != ORBVersion.Major {
		return nil, fmt.Errorf("%w: unsupported orb version %s", ErrMalformedKey, t.Version)
	}
	path, err := d.ReadStringSeq()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	t.Adapter = path
	id, err := d.ReadOctets()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedKey, d.Remaining())
	}

	return &ObjectKey{
		template: t,
		id:       id,
		raw:      append([]byte(nil), raw...),
	}, nil
}

func (k *ObjectKey) Template() ObjectKeyTemplate {
	return k.template
}

func (k *ObjectKey) Kind() KeyKind {
	return k.template.Kind
}

func (k *ObjectKey) AdapterID() AdapterID {
	return k.template.Adapter
}

// ID returns the object id part of the key. Callers must not modify it.
func (k *ObjectKey) ID() ObjectID {
	return k.id
}

// Bytes returns the encoded key. Callers must not modify it.
func (k *ObjectKey) Bytes() []byte {
	return k.raw
}

func (k *ObjectKey) Equal(o *ObjectKey) bool {
	if k == nil || o == nil {
		return k == o
	}
	return bytes.Equal(k.raw, o.raw)
}

func (k *ObjectKey) String() string {
	if k.template.Kind == KindPOA {
		return fmt.Sprintf("%s#%x", k.template.Adapter, []byte(k.id))
	}
	return string(k.raw)
}
