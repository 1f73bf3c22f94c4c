// internal/resolver/resolver.go
package resolver

import (
	"context"
	"fmt"

	"orb-server/internal/handler"
	"orb-server/internal/ior"
)

// LocalResolver maps well-known names to references. Implementations are
// read-only once dispatch starts.
type LocalResolver interface {
	// Resolve returns nil when key is unknown.
	Resolve(key string) *ior.IOR
	List() []string
}

// Table is an immutable snapshot; concurrent reads need no locking.
type Table struct {
	refs map[string]*ior.IOR
}

func (t *Table) Resolve(key string) *ior.IOR {
	if t == nil {
		return nil
	}
	return t.refs[key]
}

// List returns every key in no particular order.
func (t *Table) List() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.refs))
	for k := range t.refs {
		out = append(out, k)
	}
	return out
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.refs)
}

type Builder struct {
	refs *handler.Registry[string, *ior.IOR]
}

func NewBuilder() *Builder {
	return &Builder{refs: handler.NewRegistry[string, *ior.IOR]()}
}

// Add rejects names that are already bound.
func (b *Builder) Add(name string, ref *ior.IOR) error {
	if ref == nil {
		return fmt.Errorf("initial reference %q: nil reference", name)
	}
	ref.MakeImmutable()
	if err := b.refs.Register(name, ref); err != nil {
		return fmt.Errorf("initial reference: %w", err)
	}
	return nil
}

func (b *Builder) Build() *Table {
	return &Table{refs: b.refs.Snapshot()}
}

// Source yields name -> stringified IOR pairs.
type Source interface {
	LoadInitialRefs(ctx context.Context) (map[string]string, error)
}

type StaticSource map[string]string

func (s StaticSource) LoadInitialRefs(context.Context) (map[string]string, error) {
	return s, nil
}

// Load merges sources in order; later sources override earlier ones.
func Load(ctx context.Context, sources ...Source) (*Table, error) {
	merged := make(map[string]string)
	for _, src := range sources {
		if src == nil {
			continue
		}
		refs, err := src.LoadInitialRefs(ctx)
		if err != nil {
			return nil, fmt.Errorf("load initial references: %w", err)
		}
		for name, s := range refs {
			merged[name] = s
		}
	}

	b := NewBuilder()
	for name, s := range merged {
		ref, err := ior.ParseString(s)
		if err != nil {
			return nil, fmt.Errorf("initial reference %q: %w", name, err)
		}
		if err := b.Add(name, ref); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
