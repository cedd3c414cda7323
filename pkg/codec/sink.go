package codec

import (
	"encoding/binary"

	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/roadrunner-server/errors"
)

// Sink is the positional stream contract a codec writes against (spec.md
// section 4.1 "Positional stream contract"). put/putn mirror the spec's
// single-byte and raw-range primitives; put_num is realized as
// PutUint16/PutUint32/PutUint64 rather than a Go generic method, since the codec only ever needs
// a fixed, small set of widths and a generic method can't be used through
// the Encoder's dynamic type-switch dispatch cleanly.
type Sink interface {
	PutByte(b byte) error
	PutBytes(p []byte) error
	PutUint16(v uint16) error
	PutUint32(v uint32) error
	PutUint64(v uint64) error
	Position() int64
	Size() int64
	// Jump seeks to pos, which may be past the current high-water mark;
	// the gap is zero-filled on the next write, per spec.md section 4.1.
	Jump(pos int64) error
}

// BufferSink is a random-access Sink backed by a buffer.Mutable. Overflow
// (running out of capacity) is handled transparently by the Mutable's Grow.
type BufferSink struct {
	buf       *buffer.Mutable
	order     binary.ByteOrder
	jumpedTo  int64
	hasJumped bool
}

// NewBufferSink returns a Sink writing into buf using order for multibyte
// integers.
func NewBufferSink(buf *buffer.Mutable, order binary.ByteOrder) *BufferSink {
	return &BufferSink{buf: buf, order: order}
}

func (s *BufferSink) resolveJump() error {
	if !s.hasJumped {
		return nil
	}
	s.hasJumped = false
	gap := int(s.jumpedTo) - s.buf.Len()
	if gap <= 0 {
		return nil
	}
	zeros := make([]byte, gap)
	return s.buf.Append(zeros)
}

func (s *BufferSink) PutByte(b byte) error {
	const op = errors.Op("codec_sink_put_byte")
	if err := s.resolveJump(); err != nil {
		return errors.E(op, err)
	}
	if err := s.buf.Append([]byte{b}); err != nil {
		return errors.E(op, err)
	}
	return nil
}

func (s *BufferSink) PutBytes(p []byte) error {
	const op = errors.Op("codec_sink_put_bytes")
	if err := s.resolveJump(); err != nil {
		return errors.E(op, err)
	}
	if err := s.buf.Append(p); err != nil {
		return errors.E(op, err)
	}
	return nil
}

func (s *BufferSink) PutUint16(v uint16) error {
	var b [2]byte
	s.order.PutUint16(b[:], v)
	return s.PutBytes(b[:])
}

func (s *BufferSink) PutUint32(v uint32) error {
	var b [4]byte
	s.order.PutUint32(b[:], v)
	return s.PutBytes(b[:])
}

func (s *BufferSink) PutUint64(v uint64) error {
	var b [8]byte
	s.order.PutUint64(b[:], v)
	return s.PutBytes(b[:])
}

func (s *BufferSink) Position() int64 { return int64(s.buf.Len()) }
func (s *BufferSink) Size() int64     { return int64(s.buf.Len()) }

func (s *BufferSink) Jump(pos int64) error {
	const op = errors.Op("codec_sink_jump")
	if pos < int64(s.buf.Len()) {
		return errors.E(op, errors.Str("jump may not move behind the current high-water mark"))
	}
	s.jumpedTo = pos
	s.hasJumped = true
	return nil
}
