// Package extproto implements the codec's variable-extension-type carrier
// for protobuf messages (spec.md section 4.1's "variable extension family:
// length prefix + type byte + payload"). It reserves ExtType as the
// extension type byte for protobuf-message payloads, mirroring the way
// goridge's Codec.WriteResponse switches over a CodecProto flag to select
// proto.Marshal/Unmarshal as one of several wire encodings.
package extproto

import (
	"github.com/logicmill/armi-go/pkg/codec"
	"github.com/roadrunner-server/errors"
	"google.golang.org/protobuf/proto"
)

// ExtType is the extension type byte reserved for protobuf payloads within
// a single stream context's extension family. A context that uses extproto
// must not assign this byte to another extension kind.
const ExtType = 0x01

const (
	extVar8  = 0xc7
	extVar16 = 0xc8
	extVar32 = 0xc9
)

// Encode marshals msg with proto.Marshal and writes it as a variable
// extension value: a length prefix (8/16/32-bit, smallest-fits), the
// ExtType byte, then the payload.
func Encode(e *codec.Encoder, msg proto.Message) error {
	const op = errors.Op("extproto_encode")
	b, err := proto.Marshal(msg)
	if err != nil {
		return errors.E(op, err)
	}
	sink := e.Sink()
	n := len(b)
	switch {
	case n <= 0xff:
		if err := sink.PutByte(extVar8); err != nil {
			return errors.E(op, err)
		}
		if err := sink.PutByte(byte(n)); err != nil {
			return errors.E(op, err)
		}
	case n <= 0xffff:
		if err := sink.PutByte(extVar16); err != nil {
			return errors.E(op, err)
		}
		if err := sink.PutUint16(uint16(n)); err != nil {
			return errors.E(op, err)
		}
	default:
		if err := sink.PutByte(extVar32); err != nil {
			return errors.E(op, err)
		}
		if err := sink.PutUint32(uint32(n)); err != nil {
			return errors.E(op, err)
		}
	}
	if err := sink.PutByte(ExtType); err != nil {
		return errors.E(op, err)
	}
	if err := sink.PutBytes(b); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Decode reads a variable extension value produced by Encode and
// unmarshals it into msg via proto.Unmarshal. It fails with type_error if
// the next value is not a variable extension carrying ExtType.
func Decode(d *codec.Decoder, msg proto.Message) error {
	const op = errors.Op("extproto_decode")
	src := d.Source()
	tc, err := src.GetByte()
	if err != nil {
		return errors.E(op, err)
	}
	var n int
	switch tc {
	case extVar8:
		b, err := src.GetBytes(1)
		if err != nil {
			return errors.E(op, err)
		}
		n = int(b[0])
	case extVar16:
		b, err := src.GetBytes(2)
		if err != nil {
			return errors.E(op, err)
		}
		n = int(d.Context().ByteOrder().Uint16(b))
	case extVar32:
		b, err := src.GetBytes(4)
		if err != nil {
			return errors.E(op, err)
		}
		n = int(d.Context().ByteOrder().Uint32(b))
	default:
		return errors.E(op, errors.Str("type_error"))
	}
	typeByte, err := src.GetByte()
	if err != nil {
		return errors.E(op, err)
	}
	if typeByte != ExtType {
		return errors.E(op, errors.Str("type_error"))
	}
	payload, err := src.GetBytes(n)
	if err != nil {
		return errors.E(op, err)
	}
	if err := proto.Unmarshal(payload, msg); err != nil {
		return errors.E(op, err)
	}
	return nil
}
