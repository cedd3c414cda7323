package codec

import (
	"reflect"

	"github.com/roadrunner-server/errors"
)

// InvalidTag encodes a null polymorphic pointer (spec.md section 3:
// "A reserved invalid tag encodes a null pointer").
const InvalidTag uint16 = 0xffff

// TypeRegistry is the fixed set of concrete types known to a StreamContext,
// each assigned a small integer tag, plus a precomputed downcast-legality
// matrix: for any (source_tag, target_tag) the table says whether a pointer
// decoded as source_tag may be handed up as target_tag. Grounded on
// original_source/include/logicmill/armi/method_proxy.h and
// client_proxy_base.h, which precompute exactly this kind of table for
// polymorphic downcasts in the proxy layer.
type TypeRegistry struct {
	types     []reflect.Type
	tagByType map[reflect.Type]uint16
	factories []func() Decodable
	// downcast[source][target] is true when a pointer decoded as source may
	// be handed up as target. A type may always downcast to itself and to
	// any type explicitly registered as a base via RegisterBase.
	downcast     [][]bool
	pendingBases []baseEdge
}

// NewTypeRegistry builds an empty registry. Register concrete types with
// Register, then declare base/derived relationships with RegisterBase
// before calling Freeze to compute the downcast matrix.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{tagByType: make(map[reflect.Type]uint16)}
}

// Register assigns the next tag to sample's concrete reflect.Type, returning
// it. factory must construct a fresh zero-value Decodable of that same
// concrete type for the decoder to populate via DecodeFrom. Tags are dense
// and zero-based; InvalidTag (0xffff) is reserved and never assigned.
func (r *TypeRegistry) Register(sample any, factory func() Decodable) uint16 {
	t := reflect.TypeOf(sample)
	if tag, ok := r.tagByType[t]; ok {
		return tag
	}
	tag := uint16(len(r.types))
	r.types = append(r.types, t)
	r.tagByType[t] = tag
	r.factories = append(r.factories, factory)
	return tag
}

// New constructs a fresh Decodable for tag using its registered factory.
func (r *TypeRegistry) New(tag uint16) (Decodable, bool) {
	if int(tag) >= len(r.factories) {
		return nil, false
	}
	return r.factories[tag](), true
}

// RegisterBase declares that a pointer decoded with derivedTag may always be
// downcast to baseTag (e.g. because the Go type behind derivedTag embeds, or
// otherwise satisfies, the interface behind baseTag). Must be called before
// Freeze.
func (r *TypeRegistry) RegisterBase(derivedTag, baseTag uint16) {
	r.pendingBases = append(r.pendingBases, baseEdge{derivedTag, baseTag})
}

type baseEdge struct{ derived, base uint16 }

// Freeze computes the downcast matrix from the registered types and base
// edges. Call once after all Register/RegisterBase calls.
func (r *TypeRegistry) Freeze() {
	n := len(r.types)
	r.downcast = make([][]bool, n)
	for i := range r.downcast {
		r.downcast[i] = make([]bool, n)
		r.downcast[i][i] = true
	}
	for _, e := range r.pendingBases {
		if int(e.derived) < n && int(e.base) < n {
			r.downcast[e.derived][e.base] = true
		}
	}
}

// Tag returns the tag assigned to v's concrete type.
func (r *TypeRegistry) Tag(v any) (uint16, bool) {
	if v == nil {
		return InvalidTag, true
	}
	tag, ok := r.tagByType[reflect.TypeOf(v)]
	return tag, ok
}

// TypeFor returns the reflect.Type registered under tag.
func (r *TypeRegistry) TypeFor(tag uint16) (reflect.Type, bool) {
	if int(tag) >= len(r.types) {
		return nil, false
	}
	return r.types[tag], true
}

// CanDowncast reports whether a pointer decoded as source may be handed up
// as target.
func (r *TypeRegistry) CanDowncast(source, target uint16) bool {
	if int(source) >= len(r.downcast) || int(target) >= len(r.downcast) {
		return false
	}
	return r.downcast[source][target]
}

// RequireDowncast is CanDowncast with an errcode.InvalidPtrDowncast-shaped
// error on failure, for callers that just want to bail out.
func (r *TypeRegistry) RequireDowncast(source, target uint16) error {
	const op = errors.Op("codec_type_registry_downcast")
	if !r.CanDowncast(source, target) {
		return errors.E(op, errInvalidPtrDowncast)
	}
	return nil
}

var errInvalidPtrDowncast = errors.Str("invalid_ptr_downcast")
