// Package msgpackconv bridges codec.Encoder/Decoder values to and from
// github.com/vmihailenco/msgpack/v5, so a Go type that already knows how to
// marshal itself via struct tags (rather than implementing codec.Encodable
// by hand) still round-trips through the same wire bytes. Wired per
// SPEC_FULL.md's domain-stack table: the hand-rolled codec in pkg/codec is
// byte-compatible with MessagePack, so any value msgpack.Marshal can produce
// is also a valid codec.Decoder payload and vice versa.
package msgpackconv

import (
	"github.com/logicmill/armi-go/pkg/codec"
	"github.com/roadrunner-server/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ToMsgpack encodes v with msgpack.Marshal and writes the resulting bytes
// verbatim to e's sink -- both encodings share the MessagePack typecode
// table, so the copied bytes are readable by codec.Decoder without a
// re-encode. The typecode msgpack.Marshal picks for a value may differ from
// the one codec.Encoder would pick for it, so the bytes are not guaranteed
// to be identical to codec.Encoder's output for the same value.
func ToMsgpack(e *codec.Encoder, v any) error {
	const op = errors.Op("msgpackconv_to_msgpack")
	b, err := msgpack.Marshal(v)
	if err != nil {
		return errors.E(op, err)
	}
	if err := e.Sink().PutBytes(b); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// FromMsgpack decodes the raw bytes remaining in d's source (sz bytes, the
// size of the still-encoded value) into out via msgpack.Unmarshal. Callers
// typically know sz because they encoded it alongside the value (e.g. via a
// preceding codec.Encoder.EncodeBytes length-prefixed blob).
func FromMsgpack(d *codec.Decoder, sz int, out any) error {
	const op = errors.Op("msgpackconv_from_msgpack")
	b, err := d.Source().GetBytes(sz)
	if err != nil {
		return errors.E(op, err)
	}
	if err := msgpack.Unmarshal(b, out); err != nil {
		return errors.E(op, err)
	}
	return nil
}
