package codec

import (
	"math"
	"time"

	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/roadrunner-server/errors"
)

// Decoder binds a StreamContext to a Source for one decode pass, with the
// symmetric dedup table: decoded pointer targets are recorded in the order
// they were first seen so that a later [tag, saved_index] reference can
// resolve back to the same Go value (spec.md section 4.1).
type Decoder struct {
	ctx         StreamContext
	src         Source
	decoded     []Decodable
	decodedTags []uint16
}

// NewDecoder returns a Decoder reading from src under ctx's configuration.
func NewDecoder(ctx StreamContext, src Source) *Decoder {
	return &Decoder{ctx: ctx, src: src}
}

// Context returns the bound StreamContext.
func (d *Decoder) Context() StreamContext { return d.ctx }

// Source returns the bound Source.
func (d *Decoder) Source() Source { return d.src }

func typeErr(op errors.Op) error {
	return errors.E(op, errors.Str("type_error"))
}

// DecodeNil consumes a nil marker, failing with type_error if the next
// value is not nil.
func (d *Decoder) DecodeNil() error {
	const op = errors.Op("codec_decode_nil")
	tc, err := d.src.GetByte()
	if err != nil {
		return errors.E(op, err)
	}
	if tc != tcNil {
		return typeErr(op)
	}
	return nil
}

// DecodeBool reads a boolean.
func (d *Decoder) DecodeBool() (bool, error) {
	const op = errors.Op("codec_decode_bool")
	tc, err := d.src.GetByte()
	if err != nil {
		return false, errors.E(op, err)
	}
	switch tc {
	case tcTrue:
		return true, nil
	case tcFalse:
		return false, nil
	default:
		return false, typeErr(op)
	}
}

// DecodeInt64 reads any integer typecode representable as int64 -- spec.md
// section 4.1: "When reading with an expected category T, any typecode
// whose value is representable in T is accepted".
func (d *Decoder) DecodeInt64() (int64, error) {
	const op = errors.Op("codec_decode_int64")
	tc, err := d.src.GetByte()
	if err != nil {
		return 0, errors.E(op, err)
	}
	switch {
	case isPosFixint(tc):
		return int64(tc), nil
	case isNegFixint(tc):
		return int64(int8(tc)), nil
	case tc == tcInt8:
		b, err := d.src.GetBytes(1)
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int64(int8(b[0])), nil
	case tc == tcUint8:
		b, err := d.src.GetBytes(1)
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int64(b[0]), nil
	case tc == tcInt16:
		v, err := d.getUint16()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int64(int16(v)), nil
	case tc == tcUint16:
		v, err := d.getUint16()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int64(v), nil
	case tc == tcInt32:
		v, err := d.getUint32()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int64(int32(v)), nil
	case tc == tcUint32:
		v, err := d.getUint32()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int64(v), nil
	case tc == tcInt64:
		v, err := d.getUint64()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int64(v), nil
	case tc == tcUint64:
		v, err := d.getUint64()
		if err != nil {
			return 0, errors.E(op, err)
		}
		if v > math.MaxInt64 {
			return 0, typeErr(op)
		}
		return int64(v), nil
	default:
		return 0, typeErr(op)
	}
}

// DecodeUint64 reads any integer typecode representable as uint64.
func (d *Decoder) DecodeUint64() (uint64, error) {
	const op = errors.Op("codec_decode_uint64")
	tc, err := d.src.PeekByte()
	if err != nil {
		return 0, errors.E(op, err)
	}
	if tc == tcUint64 {
		if _, err := d.src.GetByte(); err != nil {
			return 0, errors.E(op, err)
		}
		u, err := d.getUint64()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return u, nil
	}
	v, err := d.DecodeInt64()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, typeErr(op)
	}
	return uint64(v), nil
}

func (d *Decoder) getUint16() (uint16, error) {
	b, err := d.src.GetBytes(2)
	if err != nil {
		return 0, err
	}
	return d.ctx.ByteOrder().Uint16(b), nil
}

func (d *Decoder) getUint32() (uint32, error) {
	b, err := d.src.GetBytes(4)
	if err != nil {
		return 0, err
	}
	return d.ctx.ByteOrder().Uint32(b), nil
}

func (d *Decoder) getUint64() (uint64, error) {
	b, err := d.src.GetBytes(8)
	if err != nil {
		return 0, err
	}
	return d.ctx.ByteOrder().Uint64(b), nil
}

// DecodeFloat32 reads a single-precision float.
func (d *Decoder) DecodeFloat32() (float32, error) {
	const op = errors.Op("codec_decode_float32")
	tc, err := d.src.GetByte()
	if err != nil {
		return 0, errors.E(op, err)
	}
	if tc != tcFloat32 {
		return 0, typeErr(op)
	}
	v, err := d.getUint32()
	if err != nil {
		return 0, errors.E(op, err)
	}
	return math.Float32frombits(v), nil
}

// DecodeFloat64 reads a double-precision float, also accepting a
// single-precision value widened, matching the "any typecode whose value is
// representable" acceptance rule.
func (d *Decoder) DecodeFloat64() (float64, error) {
	const op = errors.Op("codec_decode_float64")
	tc, err := d.src.PeekByte()
	if err != nil {
		return 0, errors.E(op, err)
	}
	if tc == tcFloat32 {
		v, err := d.DecodeFloat32()
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	}
	if _, err := d.src.GetByte(); err != nil {
		return 0, errors.E(op, err)
	}
	if tc != tcFloat64 {
		return 0, typeErr(op)
	}
	v, err := d.getUint64()
	if err != nil {
		return 0, errors.E(op, err)
	}
	return math.Float64frombits(v), nil
}

// DecodeDuration reads a duration encoded as a signed nanosecond count.
func (d *Decoder) DecodeDuration() (time.Duration, error) {
	v, err := d.DecodeInt64()
	if err != nil {
		return 0, err
	}
	return time.Duration(v), nil
}

// DecodeString reads a UTF-8 string.
func (d *Decoder) DecodeString() (string, error) {
	const op = errors.Op("codec_decode_string")
	tc, err := d.src.GetByte()
	if err != nil {
		return "", errors.E(op, err)
	}
	var n int
	switch {
	case isFixstr(tc):
		n = int(tc &^ tcFixstrBase)
	case tc == tcStr8:
		b, err := d.src.GetBytes(1)
		if err != nil {
			return "", errors.E(op, err)
		}
		n = int(b[0])
	case tc == tcStr16:
		v, err := d.getUint16()
		if err != nil {
			return "", errors.E(op, err)
		}
		n = int(v)
	case tc == tcStr32:
		v, err := d.getUint32()
		if err != nil {
			return "", errors.E(op, err)
		}
		n = int(v)
	default:
		return "", typeErr(op)
	}
	b, err := d.src.GetBytes(n)
	if err != nil {
		return "", errors.E(op, err)
	}
	return string(b), nil
}

// DecodeBytes reads a raw binary blob.
func (d *Decoder) DecodeBytes() ([]byte, error) {
	const op = errors.Op("codec_decode_bytes")
	tc, err := d.src.GetByte()
	if err != nil {
		return nil, errors.E(op, err)
	}
	var n int
	switch tc {
	case tcBin8:
		b, err := d.src.GetBytes(1)
		if err != nil {
			return nil, errors.E(op, err)
		}
		n = int(b[0])
	case tcBin16:
		v, err := d.getUint16()
		if err != nil {
			return nil, errors.E(op, err)
		}
		n = int(v)
	case tcBin32:
		v, err := d.getUint32()
		if err != nil {
			return nil, errors.E(op, err)
		}
		n = int(v)
	default:
		return nil, typeErr(op)
	}
	b, err := d.src.GetBytes(n)
	if err != nil {
		return nil, errors.E(op, err)
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// DecodeArrayHeader reads an array header and returns the element count.
func (d *Decoder) DecodeArrayHeader() (int, error) {
	const op = errors.Op("codec_decode_array_header")
	tc, err := d.src.GetByte()
	if err != nil {
		return 0, errors.E(op, err)
	}
	switch {
	case isFixarray(tc):
		return int(tc &^ tcFixarrayBase), nil
	case tc == tcArray16:
		v, err := d.getUint16()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int(v), nil
	case tc == tcArray32:
		v, err := d.getUint32()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int(v), nil
	default:
		return 0, typeErr(op)
	}
}

// DecodeMapHeader reads a map header and returns the pair count.
func (d *Decoder) DecodeMapHeader() (int, error) {
	const op = errors.Op("codec_decode_map_header")
	tc, err := d.src.GetByte()
	if err != nil {
		return 0, errors.E(op, err)
	}
	switch {
	case isFixmap(tc):
		return int(tc &^ tcFixmapBase), nil
	case tc == tcMap16:
		v, err := d.getUint16()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int(v), nil
	case tc == tcMap32:
		v, err := d.getUint32()
		if err != nil {
			return 0, errors.E(op, err)
		}
		return int(v), nil
	default:
		return 0, typeErr(op)
	}
}

// DecodeArray reads a generic array into a []any, recursing through
// DecodeAny for each element.
func (d *Decoder) DecodeArray() ([]any, error) {
	const op = errors.Op("codec_decode_array")
	n, err := d.DecodeArrayHeader()
	if err != nil {
		return nil, errors.E(op, err)
	}
	out := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := d.DecodeAny()
		if err != nil {
			return nil, errors.E(op, err)
		}
		out[i] = v
	}
	return out, nil
}

// DecodeStringMap reads a map into a map[string]any.
func (d *Decoder) DecodeStringMap() (map[string]any, error) {
	const op = errors.Op("codec_decode_string_map")
	n, err := d.DecodeMapHeader()
	if err != nil {
		return nil, errors.E(op, err)
	}
	out := make(map[string]any, n)
	for i := 0; i < n; i++ {
		k, err := d.DecodeString()
		if err != nil {
			return nil, errors.E(op, err)
		}
		v, err := d.DecodeAny()
		if err != nil {
			return nil, errors.E(op, err)
		}
		out[k] = v
	}
	return out, nil
}

// DecodeAny reads the next value as whichever dynamically typed Go value
// best represents its typecode (bool, int64, float64, string, []byte,
// []any, map[string]any, or nil). Used by the server when argument types
// are not statically known, and for generic reply bodies.
func (d *Decoder) DecodeAny() (any, error) {
	const op = errors.Op("codec_decode_any")
	tc, err := d.src.PeekByte()
	if err != nil {
		return nil, errors.E(op, err)
	}
	switch {
	case tc == tcNil:
		return nil, d.DecodeNil()
	case tc == tcTrue || tc == tcFalse:
		return d.DecodeBool()
	case isPosFixint(tc) || isNegFixint(tc) || tc == tcInt8 || tc == tcInt16 ||
		tc == tcInt32 || tc == tcInt64:
		return d.DecodeInt64()
	case tc == tcUint8 || tc == tcUint16 || tc == tcUint32 || tc == tcUint64:
		return d.DecodeUint64()
	case tc == tcFloat32 || tc == tcFloat64:
		return d.DecodeFloat64()
	case isFixstr(tc) || tc == tcStr8 || tc == tcStr16 || tc == tcStr32:
		return d.DecodeString()
	case tc == tcBin8 || tc == tcBin16 || tc == tcBin32:
		return d.DecodeBytes()
	case isFixarray(tc) || tc == tcArray16 || tc == tcArray32:
		return d.DecodeArray()
	case isFixmap(tc) || tc == tcMap16 || tc == tcMap32:
		return d.DecodeStringMap()
	default:
		return nil, typeErr(op)
	}
}

// DecodeErrorCode reads [category_index, value] into an errcode.Code.
func (d *Decoder) DecodeErrorCode() (errcode.Code, error) {
	const op = errors.Op("codec_decode_error_code")
	n, err := d.DecodeArrayHeader()
	if err != nil {
		return errcode.Code{}, errors.E(op, err)
	}
	if n != 2 {
		return errcode.Code{}, errors.E(op, errors.Str("member_count_error"))
	}
	cat, err := d.DecodeInt64()
	if err != nil {
		return errcode.Code{}, errors.E(op, err)
	}
	val, err := d.DecodeInt64()
	if err != nil {
		return errcode.Code{}, errors.E(op, err)
	}
	return errcode.Code{Category: int(cat), Value: int32(val)}, nil
}

// DecodePtr reads a polymorphic reference: [tag, body] or [tag,
// saved_index] or the null form [invalid_tag, nil]. targetTag is the tag of
// the statically declared field/argument type the caller is decoding into;
// DecodePtr enforces spec.md section 4.1's downcast-legality rule via
// TypeRegistry.RequireDowncast against it before returning, failing with
// invalid_ptr_downcast if the decoded object's concrete tag cannot be
// handed up as targetTag. It returns the decoded (or dedup-resolved)
// Decodable, or nil for a null pointer (a null pointer carries no tag to
// check and is always legal).
func (d *Decoder) DecodePtr(targetTag uint16) (Decodable, error) {
	const op = errors.Op("codec_decode_ptr")
	n, err := d.DecodeArrayHeader()
	if err != nil {
		return nil, errors.E(op, err)
	}
	if n != 2 {
		return nil, errors.E(op, errors.Str("member_count_error"))
	}
	tagVal, err := d.DecodeUint64()
	if err != nil {
		return nil, errors.E(op, err)
	}
	tag := uint16(tagVal)

	if tag == InvalidTag {
		if err := d.DecodeNil(); err != nil {
			return nil, errors.E(op, err)
		}
		return nil, nil
	}

	tc, err := d.src.PeekByte()
	if err != nil {
		return nil, errors.E(op, err)
	}
	isBody := isFixarray(tc) || tc == tcArray16 || tc == tcArray32
	if !isBody {
		idxVal, err := d.DecodeInt64()
		if err != nil {
			return nil, errors.E(op, err)
		}
		idx := int(idxVal)
		if idx < 0 || idx >= len(d.decoded) {
			return nil, errors.E(op, errors.Str("invalid_dedup_index"))
		}
		if err := d.ctx.Types().RequireDowncast(d.decodedTags[idx], targetTag); err != nil {
			return nil, errors.E(op, err)
		}
		return d.decoded[idx], nil
	}

	obj, ok := d.ctx.Types().New(tag)
	if !ok {
		return nil, errors.E(op, errors.Str("type_error"))
	}
	if d.ctx.DedupEnabled() {
		d.decoded = append(d.decoded, obj)
		d.decodedTags = append(d.decodedTags, tag)
	}
	if err := obj.DecodeFrom(d); err != nil {
		return nil, errors.E(op, err)
	}
	if err := d.ctx.Types().RequireDowncast(tag, targetTag); err != nil {
		return nil, errors.E(op, err)
	}
	return obj, nil
}
