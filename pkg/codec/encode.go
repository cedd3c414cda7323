package codec

import (
	"math"
	"reflect"
	"time"

	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/roadrunner-server/errors"
)

// Encoder binds a StreamContext to a Sink for one encode pass. Pointer
// deduplication state (spec.md section 4.1 "Polymorphic references") lives
// here and is scoped to the pass: construct a fresh Encoder per request or
// per reply.
type Encoder struct {
	ctx   StreamContext
	sink  Sink
	seen  map[uintptr]int
	count int
}

// NewEncoder returns an Encoder writing into sink under ctx's configuration.
func NewEncoder(ctx StreamContext, sink Sink) *Encoder {
	return &Encoder{ctx: ctx, sink: sink, seen: make(map[uintptr]int)}
}

// Context returns the bound StreamContext.
func (e *Encoder) Context() StreamContext { return e.ctx }

// Sink returns the bound Sink, for Encodable implementations that need
// direct access (e.g. to write raw bytes).
func (e *Encoder) Sink() Sink { return e.sink }

// Encode dispatches v through the three strategies of spec.md section 4.1:
// an Encodable's own EncodeTo, then the recognized-primitive rule.
func (e *Encoder) Encode(v any) error {
	const op = errors.Op("codec_encode")
	switch tv := v.(type) {
	case nil:
		return e.sink.PutByte(tcNil)
	case Encodable:
		return tv.EncodeTo(e)
	case Ptr:
		return e.encodePtr(tv)
	case bool:
		return e.EncodeBool(tv)
	case string:
		return e.EncodeString(tv)
	case []byte:
		return e.EncodeBytes(tv)
	case time.Duration:
		return e.EncodeDuration(tv)
	case errcode.Code:
		return e.EncodeErrorCode(tv)
	case int:
		return e.EncodeInt64(int64(tv))
	case int8:
		return e.EncodeInt64(int64(tv))
	case int16:
		return e.EncodeInt64(int64(tv))
	case int32:
		return e.EncodeInt64(int64(tv))
	case int64:
		return e.EncodeInt64(tv)
	case uint:
		return e.EncodeUint64(uint64(tv))
	case uint8:
		return e.EncodeUint64(uint64(tv))
	case uint16:
		return e.EncodeUint64(uint64(tv))
	case uint32:
		return e.EncodeUint64(uint64(tv))
	case uint64:
		return e.EncodeUint64(tv)
	case float32:
		return e.EncodeFloat32(tv)
	case float64:
		return e.EncodeFloat64(tv)
	case []any:
		return e.EncodeArray(tv)
	case map[string]any:
		return e.EncodeStringMap(tv)
	default:
		return errors.E(op, errors.Str("value is not codec-representable"))
	}
}

// EncodeBool writes true/false.
func (e *Encoder) EncodeBool(v bool) error {
	if v {
		return e.sink.PutByte(tcTrue)
	}
	return e.sink.PutByte(tcFalse)
}

// EncodeInt64 uses the smallest-fits typecode: positive values below 128
// are written as positive fixint; negative values from -32 are negative
// fixint; otherwise the smallest signed width that holds the value,
// matching spec.md's "smallest typecode whose range contains the value".
func (e *Encoder) EncodeInt64(v int64) error {
	switch {
	case v >= 0 && v <= tcPosFixintMax:
		return e.sink.PutByte(byte(v))
	case v < 0 && v >= -32:
		return e.sink.PutByte(byte(int8(v)))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		if err := e.sink.PutByte(tcInt8); err != nil {
			return err
		}
		return e.sink.PutByte(byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		if err := e.sink.PutByte(tcInt16); err != nil {
			return err
		}
		return e.sink.PutUint16(uint16(int16(v)))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		if err := e.sink.PutByte(tcInt32); err != nil {
			return err
		}
		return e.sink.PutUint32(uint32(int32(v)))
	default:
		if err := e.sink.PutByte(tcInt64); err != nil {
			return err
		}
		return e.sink.PutUint64(uint64(v))
	}
}

// EncodeUint64 uses the smallest-fits unsigned typecode.
func (e *Encoder) EncodeUint64(v uint64) error {
	switch {
	case v <= tcPosFixintMax:
		return e.sink.PutByte(byte(v))
	case v <= math.MaxUint8:
		if err := e.sink.PutByte(tcUint8); err != nil {
			return err
		}
		return e.sink.PutByte(byte(v))
	case v <= math.MaxUint16:
		if err := e.sink.PutByte(tcUint16); err != nil {
			return err
		}
		return e.sink.PutUint16(uint16(v))
	case v <= math.MaxUint32:
		if err := e.sink.PutByte(tcUint32); err != nil {
			return err
		}
		return e.sink.PutUint32(uint32(v))
	default:
		if err := e.sink.PutByte(tcUint64); err != nil {
			return err
		}
		return e.sink.PutUint64(v)
	}
}

// EncodeFloat32 writes a single-precision float.
func (e *Encoder) EncodeFloat32(v float32) error {
	if err := e.sink.PutByte(tcFloat32); err != nil {
		return err
	}
	return e.sink.PutUint32(math.Float32bits(v))
}

// EncodeFloat64 writes a double-precision float.
func (e *Encoder) EncodeFloat64(v float64) error {
	if err := e.sink.PutByte(tcFloat64); err != nil {
		return err
	}
	return e.sink.PutUint64(math.Float64bits(v))
}

// EncodeDuration writes v as its nanosecond count, packed as a signed
// integer (spec.md section 4.1 lists duration among the recognized
// primitives).
func (e *Encoder) EncodeDuration(v time.Duration) error {
	return e.EncodeInt64(int64(v))
}

// EncodeString writes a UTF-8 string with an 8/16/32-bit length prefix
// chosen by smallest-fits.
func (e *Encoder) EncodeString(s string) error {
	const op = errors.Op("codec_encode_string")
	n := len(s)
	switch {
	case n <= 31:
		if err := e.sink.PutByte(byte(tcFixstrBase | n)); err != nil {
			return errors.E(op, err)
		}
	case n <= math.MaxUint8:
		if err := e.sink.PutByte(tcStr8); err != nil {
			return errors.E(op, err)
		}
		if err := e.sink.PutByte(byte(n)); err != nil {
			return errors.E(op, err)
		}
	case n <= math.MaxUint16:
		if err := e.sink.PutByte(tcStr16); err != nil {
			return errors.E(op, err)
		}
		if err := e.sink.PutUint16(uint16(n)); err != nil {
			return errors.E(op, err)
		}
	default:
		if err := e.sink.PutByte(tcStr32); err != nil {
			return errors.E(op, err)
		}
		if err := e.sink.PutUint32(uint32(n)); err != nil {
			return errors.E(op, err)
		}
	}
	return e.sink.PutBytes([]byte(s))
}

// EncodeBytes writes a raw binary blob with an 8/16/32-bit length prefix.
func (e *Encoder) EncodeBytes(b []byte) error {
	const op = errors.Op("codec_encode_bytes")
	n := len(b)
	switch {
	case n <= math.MaxUint8:
		if err := e.sink.PutByte(tcBin8); err != nil {
			return errors.E(op, err)
		}
		if err := e.sink.PutByte(byte(n)); err != nil {
			return errors.E(op, err)
		}
	case n <= math.MaxUint16:
		if err := e.sink.PutByte(tcBin16); err != nil {
			return errors.E(op, err)
		}
		if err := e.sink.PutUint16(uint16(n)); err != nil {
			return errors.E(op, err)
		}
	default:
		if err := e.sink.PutByte(tcBin32); err != nil {
			return errors.E(op, err)
		}
		if err := e.sink.PutUint32(uint32(n)); err != nil {
			return errors.E(op, err)
		}
	}
	return e.sink.PutBytes(b)
}

// EncodeArrayHeader writes an array header for n upcoming elements.
func (e *Encoder) EncodeArrayHeader(n int) error {
	const op = errors.Op("codec_encode_array_header")
	switch {
	case n <= 15:
		return e.sink.PutByte(byte(tcFixarrayBase | n))
	case n <= math.MaxUint16:
		if err := e.sink.PutByte(tcArray16); err != nil {
			return errors.E(op, err)
		}
		return e.sink.PutUint16(uint16(n))
	default:
		if err := e.sink.PutByte(tcArray32); err != nil {
			return errors.E(op, err)
		}
		return e.sink.PutUint32(uint32(n))
	}
}

// EncodeArray writes a generic []any as an array.
func (e *Encoder) EncodeArray(items []any) error {
	const op = errors.Op("codec_encode_array")
	if err := e.EncodeArrayHeader(len(items)); err != nil {
		return errors.E(op, err)
	}
	for _, it := range items {
		if err := e.Encode(it); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

// EncodeMapHeader writes a map header for n upcoming (key,value) pairs.
func (e *Encoder) EncodeMapHeader(n int) error {
	const op = errors.Op("codec_encode_map_header")
	switch {
	case n <= 15:
		return e.sink.PutByte(byte(tcFixmapBase | n))
	case n <= math.MaxUint16:
		if err := e.sink.PutByte(tcMap16); err != nil {
			return errors.E(op, err)
		}
		return e.sink.PutUint16(uint16(n))
	default:
		if err := e.sink.PutByte(tcMap32); err != nil {
			return errors.E(op, err)
		}
		return e.sink.PutUint32(uint32(n))
	}
}

// EncodeStringMap writes a map[string]any as a map.
func (e *Encoder) EncodeStringMap(m map[string]any) error {
	const op = errors.Op("codec_encode_string_map")
	if err := e.EncodeMapHeader(len(m)); err != nil {
		return errors.E(op, err)
	}
	for k, v := range m {
		if err := e.EncodeString(k); err != nil {
			return errors.E(op, err)
		}
		if err := e.Encode(v); err != nil {
			return errors.E(op, err)
		}
	}
	return nil
}

// EncodeErrorCode writes c as [category_index, value] (spec.md section
// 4.1 "Error codes on the wire"). The category is validated against the
// bound context's registry; an out-of-range category substitutes the
// runtime invalid_err_category code, matching the wire rule.
func (e *Encoder) EncodeErrorCode(c errcode.Code) error {
	const op = errors.Op("codec_encode_error_code")
	reg := e.ctx.Errors()
	if reg == nil || !reg.Valid(c.Category) {
		c = errcode.Code{Category: reg.RPCCategory(), Value: int32(errcode.InvalidErrCategory)}
	}
	if err := e.EncodeArrayHeader(2); err != nil {
		return errors.E(op, err)
	}
	if err := e.EncodeInt64(int64(c.Category)); err != nil {
		return errors.E(op, err)
	}
	return e.EncodeInt64(int64(c.Value))
}

// encodePtr implements the polymorphic-reference wire rule: a null pointer
// is [invalid_tag, nil]; a fresh pointer is [tag, body]; a pointer already
// seen in this encode pass is [tag, saved_index] when dedup is enabled.
func (e *Encoder) encodePtr(p Ptr) error {
	const op = errors.Op("codec_encode_ptr")
	if p.Target == nil || reflect.ValueOf(p.Target).IsNil() {
		if err := e.EncodeArrayHeader(2); err != nil {
			return errors.E(op, err)
		}
		if err := e.EncodeUint64(uint64(InvalidTag)); err != nil {
			return errors.E(op, err)
		}
		return e.sink.PutByte(tcNil)
	}

	tag, ok := e.ctx.Types().Tag(p.Target)
	if !ok {
		return errors.E(op, errors.Str("pointer target type is not registered"))
	}

	if err := e.EncodeArrayHeader(2); err != nil {
		return errors.E(op, err)
	}
	if err := e.EncodeUint64(uint64(tag)); err != nil {
		return errors.E(op, err)
	}

	if e.ctx.DedupEnabled() {
		addr := reflect.ValueOf(p.Target).Pointer()
		if idx, seen := e.seen[addr]; seen {
			return e.EncodeInt64(int64(idx))
		}
		e.seen[addr] = e.count
		e.count++
	}
	return p.Target.EncodeTo(e)
}
