package codec

import (
	"encoding/binary"

	"github.com/roadrunner-server/errors"
)

// Source is the positional stream contract a codec reads against (spec.md
// section 4.1). Reads past end of source fail with read_past_end_of_stream.
type Source interface {
	GetByte() (byte, error)
	GetBytes(n int) ([]byte, error)
	PeekByte() (byte, error)
	Position() int64
	Size() int64
	Seek(pos int64) error
}

// BufferSource is a random-access Source over an in-memory byte slice.
type BufferSource struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

// NewBufferSource wraps data for sequential/positional reads using order
// for multibyte integers.
func NewBufferSource(data []byte, order binary.ByteOrder) *BufferSource {
	return &BufferSource{data: data, order: order}
}

func (s *BufferSource) GetByte() (byte, error) {
	const op = errors.Op("codec_source_get_byte")
	if s.pos >= len(s.data) {
		return 0, errors.E(op, errReadPastEnd)
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

func (s *BufferSource) PeekByte() (byte, error) {
	const op = errors.Op("codec_source_peek_byte")
	if s.pos >= len(s.data) {
		return 0, errors.E(op, errReadPastEnd)
	}
	return s.data[s.pos], nil
}

func (s *BufferSource) GetBytes(n int) ([]byte, error) {
	const op = errors.Op("codec_source_get_bytes")
	if n < 0 || s.pos+n > len(s.data) {
		return nil, errors.E(op, errReadPastEnd)
	}
	out := s.data[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

func (s *BufferSource) GetUint16() (uint16, error) {
	b, err := s.GetBytes(2)
	if err != nil {
		return 0, err
	}
	return s.order.Uint16(b), nil
}

func (s *BufferSource) GetUint32() (uint32, error) {
	b, err := s.GetBytes(4)
	if err != nil {
		return 0, err
	}
	return s.order.Uint32(b), nil
}

func (s *BufferSource) GetUint64() (uint64, error) {
	b, err := s.GetBytes(8)
	if err != nil {
		return 0, err
	}
	return s.order.Uint64(b), nil
}

func (s *BufferSource) Position() int64 { return int64(s.pos) }
func (s *BufferSource) Size() int64     { return int64(len(s.data)) }

func (s *BufferSource) Seek(pos int64) error {
	const op = errors.Op("codec_source_seek")
	if pos < 0 || pos > int64(len(s.data)) {
		return errors.E(op, errReadPastEnd)
	}
	s.pos = int(pos)
	return nil
}

var errReadPastEnd = errors.Str("read past end of stream")
