// Package frame implements the wire frame spec.md section 6 defines: an
// 8-byte big-endian header (size uint32, flags uint32) followed by size
// payload bytes. flags is opaque to this package and to the RPC engine; a
// pipeline layer above the framer may define its own bit meanings (spec.md
// section 3 "Frame").
//
// Grounded in style on
// _examples/l3dlp-sandbox-goridge/pkg/rpc/codec.go's fr.Header()/
// fr.WriteOptions() accessor pattern and
// _examples/l3dlp-sandbox-goridge/internal/receive.go's partial-read loop,
// adapted to this spec's simpler 8-byte header (goridge's own frame header
// additionally carries CRC and variable options, which spec.md's wire frame
// does not call for).
package frame

import (
	"encoding/binary"

	"github.com/roadrunner-server/errors"
)

// HeaderSize is the fixed on-wire header length.
const HeaderSize = 8

// Header is the decoded form of a frame's 8-byte header.
type Header struct {
	Size  uint32
	Flags uint32
}

// Encode writes h's wire representation into b, which must be at least
// HeaderSize bytes.
func (h Header) Encode(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], h.Size)
	binary.BigEndian.PutUint32(b[4:8], h.Flags)
}

// DecodeHeader parses an 8-byte wire header.
func DecodeHeader(b []byte) (Header, error) {
	const op = errors.Op("frame_decode_header")
	if len(b) < HeaderSize {
		return Header{}, errors.E(op, errors.Str("short header"))
	}
	return Header{
		Size:  binary.BigEndian.Uint32(b[0:4]),
		Flags: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// Frame is a header paired with its payload, reusable across reads/writes
// via Reset to avoid a fresh allocation per frame (mirroring goridge's
// frame pool: Codec.fPool / Codec.getFrame/putFrame).
type Frame struct {
	Header  Header
	Payload []byte
}

// Reset clears the frame so it can be reused from a pool.
func (f *Frame) Reset() {
	f.Header = Header{}
	f.Payload = f.Payload[:0]
}

// Encode renders the frame's full wire bytes (header + payload) into a
// freshly allocated slice.
func (f *Frame) Encode() []byte {
	out := make([]byte, HeaderSize+len(f.Payload))
	f.Header.Size = uint32(len(f.Payload))
	f.Header.Encode(out[:HeaderSize])
	copy(out[HeaderSize:], f.Payload)
	return out
}
