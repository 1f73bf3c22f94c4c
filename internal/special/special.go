// internal/special/special.go
package special

import (
	"orb-server/internal/cdr"
	"orb-server/internal/ior"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
)

// Method is a pseudo-operation answered by the ORB instead of the servant.
// Faults are written to r; a returned error means the arguments could not
// be read.
type Method interface {
	Name() string
	IsNonExistent() bool
	Invoke(servant oa.Servant, id ior.ObjectID, adapter oa.ObjectAdapter, in *cdr.Decoder, r protocol.Replier) error
}

// Table is built once and read-only afterwards.
type Table struct {
	methods []Method
}

func NewTable() *Table {
	return &Table{methods: []Method{
		isA{},
		getInterface{name: "_interface"},
		getInterface{name: "_get_interface"},
		nonExistent{name: "_non_existent"},
		nonExistent{name: "_not_existent"},
	}}
}

// Lookup returns nil for ordinary operations.
func (t *Table) Lookup(op string) Method {
	for _, m := range t.methods {
		if m.Name() == op {
			return m
		}
	}
	return nil
}

func (t *Table) Names() []string {
	out := make([]string, len(t.methods))
	for i, m := range t.methods {
		out[i] = m.Name()
	}
	return out
}

type nonExistent struct {
	name string
}

func (m nonExistent) Name() string        { return m.name }
func (m nonExistent) IsNonExistent() bool { return true }

func (m nonExistent) Invoke(servant oa.Servant, _ ior.ObjectID, _ oa.ObjectAdapter, _ *cdr.Decoder, r protocol.Replier) error {
	r.CreateReply().WriteBool(oa.IsNull(servant))
	return nil
}

type isA struct{}

func (isA) Name() string        { return "_is_a" }
func (isA) IsNonExistent() bool { return false }

func (isA) Invoke(servant oa.Servant, id ior.ObjectID, adapter oa.ObjectAdapter, in *cdr.Decoder, r protocol.Replier) error {
	if oa.IsNull(servant) {
		r.CreateSystemExceptionReply(protocol.BadSkeleton())
		return nil
	}
	candidate, err := in.ReadString()
	if err != nil {
		return err
	}
	found := false
	if adapter != nil {
		for _, rid := range adapter.Interfaces(servant, id) {
			if rid == candidate {
				found = true
				break
			}
		}
	}
	r.CreateReply().WriteBool(found)
	return nil
}

type getInterface struct {
	name string
}

func (m getInterface) Name() string        { return m.name }
func (m getInterface) IsNonExistent() bool { return false }

func (m getInterface) Invoke(servant oa.Servant, _ ior.ObjectID, _ oa.ObjectAdapter, _ *cdr.Decoder, r protocol.Replier) error {
	if oa.IsNull(servant) {
		r.CreateSystemExceptionReply(protocol.BadSkeleton())
		return nil
	}
	r.CreateSystemExceptionReply(protocol.GetInterfaceNotImplemented())
	return nil
}
