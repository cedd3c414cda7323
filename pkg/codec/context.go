package codec

import (
	"encoding/binary"

	"github.com/logicmill/armi-go/pkg/errcode"
)

// StreamContext is the per-process or per-connection codec configuration:
// byte order, the pointer-deduplication toggle, the category registry, and
// the polymorphic type registry (spec.md section 3 "Stream context").
// Immutable after construction; copied by value since it only ever holds
// pointers/value types that are themselves safe to share.
type StreamContext struct {
	order    binary.ByteOrder
	dedup    bool
	errors   *errcode.Registry
	types    *TypeRegistry
}

// Option configures a StreamContext at construction.
type Option func(*StreamContext)

// WithLittleEndian selects little-endian multibyte packing. Big-endian is
// the default (spec.md section 4.1 "Byte order").
func WithLittleEndian() Option {
	return func(c *StreamContext) { c.order = binary.LittleEndian }
}

// WithDedup toggles pointer deduplication across one encode pass.
func WithDedup(enabled bool) Option {
	return func(c *StreamContext) { c.dedup = enabled }
}

// WithTypeRegistry installs the polymorphic type registry. If omitted, an
// empty frozen registry is used (no polymorphic values are representable).
func WithTypeRegistry(t *TypeRegistry) Option {
	return func(c *StreamContext) { c.types = t }
}

// NewStreamContext builds an immutable StreamContext. errReg must not be
// nil; it resolves error-code categories for this stream (spec.md section
// 6).
func NewStreamContext(errReg *errcode.Registry, opts ...Option) StreamContext {
	c := StreamContext{
		order:  binary.BigEndian,
		dedup:  true,
		errors: errReg,
		types:  emptyFrozenRegistry(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func emptyFrozenRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	r.Freeze()
	return r
}

// ByteOrder reports the configured multibyte integer order.
func (c StreamContext) ByteOrder() binary.ByteOrder { return c.order }

// DedupEnabled reports whether pointer deduplication is active.
func (c StreamContext) DedupEnabled() bool { return c.dedup }

// Errors returns the category registry bound to this context.
func (c StreamContext) Errors() *errcode.Registry { return c.errors }

// Types returns the polymorphic type registry bound to this context.
func (c StreamContext) Types() *TypeRegistry { return c.types }
