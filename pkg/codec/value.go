package codec

// Encodable is satisfied by any type providing its own wire encoding --
// strategy 1 of spec.md section 4.1's serializer dispatch ("T provides its
// own serialize/deserialize operation"), as well as strategy 2 ("T is an
// adapter-compatible aggregate... delegate"): in Go there is no SFINAE-style
// distinction between "has its own method" and "is aggregate-compatible",
// so both collapse onto this one interface. A composite type's EncodeTo
// writes an array header (slot count) followed by each slot in declaration
// order, matching spec.md's "Composite values... are emitted as an array
// header... followed by each slot's encoding in declaration order".
type Encodable interface {
	EncodeTo(e *Encoder) error
}

// Decodable is the read-side counterpart of Encodable.
type Decodable interface {
	DecodeFrom(d *Decoder) error
}

// Ptr wraps a polymorphic pointer argument for Encode/Decode. Target must be
// a registered, non-nil pointer value implementing Encodable, or nil to
// encode a null pointer (spec.md section 3: "A reserved null value...").
type Ptr struct {
	Target Encodable
}
