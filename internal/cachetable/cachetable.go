// internal/cachetable/cachetable.go
package cachetable

import (
	"errors"
	"fmt"
	"hash/maphash"
)

const (
	initialBuckets = 16
	loadNumerator  = 3
	loadDenom      = 4
)

// ErrDuplicateIndirection is returned when a key is bound to a second,
// different offset. The stream being written is unusable after this.
var ErrDuplicateIndirection = errors.New("duplicate indirection offset")

type entry[K comparable] struct {
	key  K
	val  int
	next *entry[K]
}

type inverseEntry[K comparable] struct {
	val  int
	key  K
	next *inverseEntry[K]
}

// Table maps keys to small integer offsets and offsets back to keys.
// It is not safe for concurrent use; one table belongs to one stream.
type Table[K comparable] struct {
	seed maphash.Seed

	buckets []*entry[K]
	size    int

	inverse     []*inverseEntry[K]
	inverseSize int
}

func New[K comparable]() *Table[K] {
	return &Table[K]{
		seed:    maphash.MakeSeed(),
		buckets: make([]*entry[K], initialBuckets),
		inverse: make([]*inverseEntry[K], initialBuckets),
	}
}

func (t *Table[K]) hashKey(k K) uint64 {
	return maphash.Comparable(t.seed, k)
}

func hashVal(v int) uint64 {
	// fibonacci hashing spreads the sequential offsets a stream produces
	return uint64(v) * 0x9E3779B97F4A7C15
}

// Put binds key to val. Binding the same pair twice is a no-op.
func (t *Table[K]) Put(key K, val int) error {
	idx := t.hashKey(key) & uint64(len(t.buckets)-1)
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			if e.val != val {
				return fmt.Errorf("%w: key bound to %d, got %d", ErrDuplicateIndirection, e.val, val)
			}
			return nil
		}
	}

	t.buckets[idx] = &entry[K]{key: key, val: val, next: t.buckets[idx]}
	t.size++
	if t.size*loadDenom >= len(t.buckets)*loadNumerator {
		t.rehash()
	}
	t.putInverse(val, key)
	return nil
}

// PutInverse records only the offset to key binding. Readers use it: a
// stream may carry the same key literally at several offsets.
func (t *Table[K]) PutInverse(val int, key K) {
	t.putInverse(val, key)
}

func (t *Table[K]) putInverse(val int, key K) {
	idx := hashVal(val) & uint64(len(t.inverse)-1)
	for e := t.inverse[idx]; e != nil; e = e.next {
		if e.val == val {
			// a later key claiming the same offset replaces the reverse binding
			e.key = key
			return
		}
	}
	t.inverse[idx] = &inverseEntry[K]{val: val, key: key, next: t.inverse[idx]}
	t.inverseSize++
	if t.inverseSize*loadDenom >= len(t.inverse)*loadNumerator {
		t.rehashInverse()
	}
}

func (t *Table[K]) rehash() {
	old := t.buckets
	t.buckets = make([]*entry[K], len(old)*2)
	mask := uint64(len(t.buckets) - 1)
	for _, head := range old {
		for e := head; e != nil; {
			next := e.next
			idx := t.hashKey(e.key) & mask
			e.next = t.buckets[idx]
			t.buckets[idx] = e
			e = next
		}
	}
}

func (t *Table[K]) rehashInverse() {
	old := t.inverse
	t.inverse = make([]*inverseEntry[K], len(old)*2)
	mask := uint64(len(t.inverse) - 1)
	for _, head := range old {
		for e := head; e != nil; {
			next := e.next
			idx := hashVal(e.val) & mask
			e.next = t.inverse[idx]
			t.inverse[idx] = e
			e = next
		}
	}
}

func (t *Table[K]) ContainsKey(key K) bool {
	_, ok := t.GetVal(key)
	return ok
}

func (t *Table[K]) GetVal(key K) (int, bool) {
	idx := t.hashKey(key) & uint64(len(t.buckets)-1)
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			return e.val, true
		}
	}
	return 0, false
}

func (t *Table[K]) ContainsVal(val int) bool {
	_, ok := t.GetKey(val)
	return ok
}

func (t *Table[K]) GetKey(val int) (K, bool) {
	idx := hashVal(val) & uint64(len(t.inverse)-1)
	for e := t.inverse[idx]; e != nil; e = e.next {
		if e.val == val {
			return e.key, true
		}
	}
	var zero K
	return zero, false
}

// Remove drops key and, if it still owns it, the reverse binding of its offset.
func (t *Table[K]) Remove(key K) bool {
	idx := t.hashKey(key) & uint64(len(t.buckets)-1)
	var prev *entry[K]
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key != key {
			prev = e
			continue
		}
		if prev == nil {
			t.buckets[idx] = e.next
		} else {
			prev.next = e.next
		}
		t.size--
		t.removeInverse(e.val, key)
		return true
	}
	return false
}

func (t *Table[K]) removeInverse(val int, key K) {
	idx := hashVal(val) & uint64(len(t.inverse)-1)
	var prev *inverseEntry[K]
	for e := t.inverse[idx]; e != nil; e = e.next {
		if e.val != val {
			prev = e
			continue
		}
		if e.key != key {
			return
		}
		if prev == nil {
			t.inverse[idx] = e.next
		} else {
			prev.next = e.next
		}
		t.inverseSize--
		return
	}
}

func (t *Table[K]) Len() int {
	return t.size
}

// Buckets reports the current forward bucket count.
func (t *Table[K]) Buckets() int {
	return len(t.buckets)
}

func (t *Table[K]) Reset() {
	t.buckets = make([]*entry[K], initialBuckets)
	t.inverse = make([]*inverseEntry[K], initialBuckets)
	t.size = 0
	t.inverseSize = 0
}
