package ior

import (
	"bytes"
	"fmt"

	"orb-server/internal/cdr"
)

const TagInternetIOP uint32 = 0

type TaggedProfile interface {
	Tag() uint32
	// ObjectKey is nil for profiles this ORB cannot interpret.
	ObjectKey() *ObjectKey
	IsEquivalent(other TaggedProfile) bool
	Write(enc *cdr.Encoder)
}

type Version struct {
	Major byte
	Minor byte
}

type IIOPProfile struct {
	Version Version
	Host    string
	Port    uint16
	Key     *ObjectKey
}

func NewIIOPProfile(host string, port uint16, key *ObjectKey) *IIOPProfile {
	return &IIOPProfile{
		Version: Version{Major: 1, Minor: 2},
		Host:    host,
		Port:    port,
		Key:     key,
	}
}

func (p *IIOPProfile) Tag() uint32 {
	return TagInternetIOP
}

func (p *IIOPProfile) ObjectKey() *ObjectKey {
	return p.Key
}

func (p *IIOPProfile) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// IsEquivalent ignores the GIOP version; two profiles reaching the same
// endpoint with the same key denote the same object.
func (p *IIOPProfile) IsEquivalent(other TaggedProfile) bool {
	o, ok := other.(*IIOPProfile)
	if !ok {
		return false
	}
	return p.Host == o.Host && p.Port == o.Port && p.Key.Equal(o.Key)
}

func (p *IIOPProfile) Write(enc *cdr.Encoder) {
	enc.WriteULong(TagInternetIOP)
	enc.WriteEncapsulation(func(e *cdr.Encoder) {
		e.WriteOctet(p.Version.Major)
		e.WriteOctet(p.Version.Minor)
		e.WriteString(p.Host)
		e.WriteUShort(p.Port)
		e.WriteOctets(p.Key.Bytes())
	})
}

func readIIOPProfile(data []byte) (*IIOPProfile, error) {
	d, err := cdr.NewEncapsulationDecoder(data)
	if err != nil {
		return nil, err
	}
	p := &IIOPProfile{}
	if p.Version.Major, err = d.ReadOctet(); err != nil {
		return nil, err
	}
	if p.Version.Minor, err = d.ReadOctet(); err != nil {
		return nil, err
	}
	if p.Host, err = d.ReadString(); err != nil {
		return nil, err
	}
	if p.Port, err = d.ReadUShort(); err != nil {
		return nil, err
	}
	raw, err := d.ReadOctets()
	if err != nil {
		return nil, err
	}
	if p.Key, err = ParseObjectKey(raw); err != nil {
		return nil, err
	}
	return p, nil
}

// GenericProfile keeps a profile with an unknown tag verbatim.
type GenericProfile struct {
	ProfileTag uint32
	Data       []byte
}

func (p *GenericProfile) Tag() uint32 {
	return p.ProfileTag
}

func (p *GenericProfile) ObjectKey() *ObjectKey {
	return nil
}

func (p *GenericProfile) IsEquivalent(other TaggedProfile) bool {
	o, ok := other.(*GenericProfile)
	if !ok {
		return false
	}
	return p.ProfileTag == o.ProfileTag && bytes.Equal(p.Data, o.Data)
}

func (p *GenericProfile) Write(enc *cdr.Encoder) {
	enc.WriteULong(p.ProfileTag)
	enc.WriteOctets(p.Data)
}
