// Package buffer implements the three owning-byte-region flavors used
// throughout the codec and pipeline: an exclusively owned, resizable
// Mutable; a reference-counted, immutable-after-construction Shared that
// slices in O(1); and a read-only Const borrow over either.
//
// Grounded on original_source/include/logicmill/buffer.h (the
// alloc_ctrl/ref_count split and the data+size<=allocation_end invariant).
package buffer

import (
	"sync/atomic"

	"github.com/roadrunner-server/errors"
)

// alloc is the refcounted backing allocation shared by Shared and the
// Const views constructed over it. It is released to the garbage collector
// when refCount reaches zero; there is no explicit deallocator function
// since Go buffers are not manually freed, but the refcount bookkeeping
// itself is part of the spec's testable invariant (spec.md section 8 item 4)
// so it is modeled explicitly rather than left to the GC alone.
type alloc struct {
	data     []byte
	refCount int64
}

func newAlloc(data []byte) *alloc {
	return &alloc{data: data, refCount: 1}
}

func (a *alloc) retain() { atomic.AddInt64(&a.refCount, 1) }

// release decrements the refcount and reports whether this call dropped it
// to zero.
func (a *alloc) release() bool {
	return atomic.AddInt64(&a.refCount, -1) == 0
}

func (a *alloc) count() int64 { return atomic.LoadInt64(&a.refCount) }

// Mutable is an exclusively owned, resizable, writable byte buffer.
// Capacity grows monotonically; Grow never shrinks an existing allocation.
type Mutable struct {
	alloc *alloc
	size  int
}

// NewMutable allocates a Mutable with the given initial capacity.
func NewMutable(capacityHint int) *Mutable {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Mutable{alloc: newAlloc(make([]byte, 0, capacityHint))}
}

// MutableFromBytes adopts b directly as the backing store (no copy); the
// caller must not retain b after this call.
func MutableFromBytes(b []byte) *Mutable {
	return &Mutable{alloc: newAlloc(b[:len(b):len(b)]), size: len(b)}
}

func (m *Mutable) checkLive(op errors.Op) error {
	if m.alloc == nil {
		return errors.E(op, errors.Str("use of released or moved mutable buffer"))
	}
	return nil
}

// Bytes returns the live window of the backing allocation. The returned
// slice aliases the buffer; callers must not retain it past a Grow/Append
// call or the buffer's release.
func (m *Mutable) Bytes() []byte {
	if m.alloc == nil {
		return nil
	}
	return m.alloc.data[:m.size]
}

// Len reports the current size in bytes.
func (m *Mutable) Len() int { return m.size }

// Cap reports the current backing capacity.
func (m *Mutable) Cap() int {
	if m.alloc == nil {
		return 0
	}
	return cap(m.alloc.data)
}

// Grow ensures at least n additional bytes of capacity are available beyond
// the current size, expanding (never shrinking) the backing allocation.
func (m *Mutable) Grow(n int) error {
	const op = errors.Op("buffer_mutable_grow")
	if err := m.checkLive(op); err != nil {
		return err
	}
	need := m.size + n
	if need <= cap(m.alloc.data) {
		return nil
	}
	grown := make([]byte, m.size, need)
	copy(grown, m.alloc.data[:m.size])
	m.alloc.data = grown
	return nil
}

// Append writes p to the end of the buffer, growing as needed.
func (m *Mutable) Append(p []byte) error {
	const op = errors.Op("buffer_mutable_append")
	if err := m.Grow(len(p)); err != nil {
		return errors.E(op, err)
	}
	m.alloc.data = append(m.alloc.data[:m.size], p...)
	m.size += len(p)
	return nil
}

// Truncate sets the live size to n, which must be <= the current size.
func (m *Mutable) Truncate(n int) error {
	const op = errors.Op("buffer_mutable_truncate")
	if err := m.checkLive(op); err != nil {
		return err
	}
	if n < 0 || n > m.size {
		return errors.E(op, errors.Str("truncate length out of range"))
	}
	m.size = n
	return nil
}

// Freeze returns a Const view over a copy of the buffer's live bytes. A
// Mutable may still grow after this call; the Const view is insulated from
// that by taking a copy, per spec.md section 4.2: "constructed from... a
// mutable buffer (taking a copy, because a mutable buffer may grow)".
func (m *Mutable) Freeze() Const {
	cp := make([]byte, m.size)
	copy(cp, m.Bytes())
	return Const{alloc: newAlloc(cp), size: len(cp)}
}

// Seal converts the Mutable into a Shared buffer, transferring ownership of
// the backing allocation. The Mutable is left empty (moved-from), matching
// spec.md's "when a buffer is moved, the source is left in the empty
// state".
func (m *Mutable) Seal() Shared {
	a := m.alloc
	s := m.size
	m.alloc = nil
	m.size = 0
	if a == nil {
		return Shared{}
	}
	a.data = a.data[:s]
	return Shared{alloc: a, offset: 0, size: s}
}

// Release drops the Mutable's reference to its backing allocation. A
// Mutable's refcount is always exactly 1 while live (spec.md section 4.2
// invariant), so Release always frees.
func (m *Mutable) Release() {
	m.alloc = nil
	m.size = 0
}

// Shared is a reference-counted, immutable-after-construction byte region.
// Slicing is O(1) and retains the underlying allocation.
type Shared struct {
	alloc  *alloc
	offset int
	size   int
}

// NewShared copies b into a fresh reference-counted allocation.
func NewShared(b []byte) Shared {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Shared{alloc: newAlloc(cp), size: len(cp)}
}

// Bytes returns the live window.
func (s Shared) Bytes() []byte {
	if s.alloc == nil {
		return nil
	}
	return s.alloc.data[s.offset : s.offset+s.size]
}

// Len reports the window size.
func (s Shared) Len() int { return s.size }

// RefCount reports the live alias count of the backing allocation.
func (s Shared) RefCount() int64 {
	if s.alloc == nil {
		return 0
	}
	return s.alloc.count()
}

// Slice returns a new Shared sharing the same allocation with a distinct
// (offset, size) window, incrementing the refcount. offset and size are
// relative to this Shared's current window.
func (s Shared) Slice(offset, size int) (Shared, error) {
	const op = errors.Op("buffer_shared_slice")
	if offset < 0 || size < 0 || offset+size > s.size {
		return Shared{}, errors.E(op, errors.Str("slice out of range"))
	}
	if s.alloc == nil {
		if size != 0 {
			return Shared{}, errors.E(op, errors.Str("slice of empty shared buffer"))
		}
		return Shared{}, nil
	}
	s.alloc.retain()
	return Shared{alloc: s.alloc, offset: s.offset + offset, size: size}, nil
}

// Retain returns an alias of s, incrementing the refcount.
func (s Shared) Retain() Shared {
	if s.alloc != nil {
		s.alloc.retain()
	}
	return s
}

// Release decrements the refcount, freeing the backing allocation exactly
// once when it reaches zero.
func (s Shared) Release() {
	if s.alloc == nil {
		return
	}
	s.alloc.release()
}

// Const is a read-only borrow, either aliasing a Shared (refcounted) or
// holding a private copy taken from a Mutable.
type Const struct {
	alloc  *alloc
	offset int
	size   int
}

// NewConstFromShared borrows s, incrementing its refcount.
func NewConstFromShared(s Shared) Const {
	if s.alloc != nil {
		s.alloc.retain()
	}
	return Const{alloc: s.alloc, offset: s.offset, size: s.size}
}

// NewConstFromBytes copies b into a private, ref-counted-at-one allocation.
func NewConstFromBytes(b []byte) Const {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Const{alloc: newAlloc(cp), size: len(cp)}
}

// Bytes returns the frozen view.
func (c Const) Bytes() []byte {
	if c.alloc == nil {
		return nil
	}
	return c.alloc.data[c.offset : c.offset+c.size]
}

// Len reports the window size.
func (c Const) Len() int { return c.size }

// Slice returns a new Const sharing the allocation, incrementing the
// refcount.
func (c Const) Slice(offset, size int) (Const, error) {
	const op = errors.Op("buffer_const_slice")
	if offset < 0 || size < 0 || offset+size > c.size {
		return Const{}, errors.E(op, errors.Str("slice out of range"))
	}
	if c.alloc == nil {
		if size != 0 {
			return Const{}, errors.E(op, errors.Str("slice of empty const buffer"))
		}
		return Const{}, nil
	}
	c.alloc.retain()
	return Const{alloc: c.alloc, offset: c.offset + offset, size: size}, nil
}

// Release decrements the refcount, freeing at zero.
func (c Const) Release() {
	if c.alloc == nil {
		return
	}
	c.alloc.release()
}
