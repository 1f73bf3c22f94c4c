package ior

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"orb-server/internal/cdr"
)

const stringPrefix = "IOR:"

var (
	ErrImmutable  = errors.New("ior is immutable")
	ErrNilProfile = errors.New("nil tagged profile")
)

// IOR is built by a single goroutine, frozen with MakeImmutable, and
// shared freely afterwards.
type IOR struct {
	typeID    string
	profiles  []TaggedProfile
	immutable bool
}

func NewIOR(typeID string) *IOR {
	return &IOR{typeID: typeID}
}

// Nil returns the null reference.
func Nil() *IOR {
	r := &IOR{}
	r.MakeImmutable()
	return r
}

func (r *IOR) TypeID() string {
	return r.typeID
}

func (r *IOR) IsNil() bool {
	return r == nil || (r.typeID == "" && len(r.profiles) == 0)
}

func (r *IOR) AddProfile(p TaggedProfile) error {
	if r.immutable {
		return ErrImmutable
	}
	if p == nil {
		return ErrNilProfile
	}
	r.profiles = append(r.profiles, p)
	return nil
}

func (r *IOR) MakeImmutable() {
	r.immutable = true
}

func (r *IOR) IsImmutable() bool {
	return r.immutable
}

func (r *IOR) Profiles() []TaggedProfile {
	out := make([]TaggedProfile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// IIOP returns the first IIOP profile, if any.
func (r *IOR) IIOP() (*IIOPProfile, bool) {
	for _, p := range r.profiles {
		if ip, ok := p.(*IIOPProfile); ok {
			return ip, true
		}
	}
	return nil, false
}

func (r *IOR) IsEquivalent(o *IOR) bool {
	if r == nil || o == nil {
		return r.IsNil() && o.IsNil()
	}
	if r.typeID != o.typeID || len(r.profiles) != len(o.profiles) {
		return false
	}
	for i := range r.profiles {
		if !r.profiles[i].IsEquivalent(o.profiles[i]) {
			return false
		}
	}
	return true
}

func WriteIOR(enc *cdr.Encoder, r *IOR) error {
	if r == nil {
		r = Nil()
	}
	if err := enc.WriteRepositoryID(r.typeID); err != nil {
		return err
	}
	enc.WriteULong(uint32(len(r.profiles)))
	for _, p := range r.profiles {
		p.Write(enc)
	}
	return nil
}

// ReadIOR returns a frozen reference.
func ReadIOR(d *cdr.Decoder) (*IOR, error) {
	typeID, err := d.ReadRepositoryID()
	if err != nil {
		return nil, err
	}
	n, err := d.ReadULong()
	if err != nil {
		return nil, err
	}
	if int(n) > d.Remaining() {
		return nil, cdr.ErrUnderflow
	}
	r := NewIOR(typeID)
	for i := uint32(0); i < n; i++ {
		tag, err := d.ReadULong()
		if err != nil {
			return nil, err
		}
		data, err := d.ReadOctets()
		if err != nil {
			return nil, err
		}
		var p TaggedProfile
		if tag == TagInternetIOP {
			if p, err = readIIOPProfile(data); err != nil {
				return nil, fmt.Errorf("profile %d: %w", i, err)
			}
		} else {
			p = &GenericProfile{ProfileTag: tag, Data: data}
		}
		_ = r.AddProfile(p)
	}
	r.MakeImmutable()
	return r, nil
}

// String returns the stringified "IOR:<hex>" form.
func (r *IOR) String() string {
	enc := cdr.NewEncapsulation()
	if err := WriteIOR(enc, r); err != nil {
		return stringPrefix
	}
	return stringPrefix + hex.EncodeToString(enc.Bytes())
}

func ParseString(s string) (*IOR, error) {
	if len(s) < len(stringPrefix) || !strings.EqualFold(s[:len(stringPrefix)], stringPrefix) {
		return nil, fmt.Errorf("not a stringified IOR: %q", s)
	}
	raw, err := hex.DecodeString(s[len(stringPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode IOR hex: %w", err)
	}
	d, err := cdr.NewEncapsulationDecoder(raw)
	if err != nil {
		return nil, err
	}
	return ReadIOR(d)
}
