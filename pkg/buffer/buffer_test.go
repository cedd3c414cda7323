package buffer_test

import (
	"testing"

	"github.com/logicmill/armi-go/pkg/buffer"
	"github.com/stretchr/testify/require"
)

func TestMutableGrowNeverShrinksAndAppends(t *testing.T) {
	m := buffer.NewMutable(4)
	require.NoError(t, m.Append([]byte("ab")))
	capAfterFirst := m.Cap()
	require.GreaterOrEqual(t, capAfterFirst, 2)

	require.NoError(t, m.Append([]byte("cdefgh")))
	require.Equal(t, "abcdefgh", string(m.Bytes()))
	require.GreaterOrEqual(t, m.Cap(), capAfterFirst)
}

func TestSharedSliceRetainsAllocationAndRefcounts(t *testing.T) {
	s := buffer.NewShared([]byte("hello world"))
	require.EqualValues(t, 1, s.RefCount())

	sl, err := s.Slice(6, 5)
	require.NoError(t, err)
	require.Equal(t, "world", string(sl.Bytes()))
	require.EqualValues(t, 2, s.RefCount())

	sl.Release()
	require.EqualValues(t, 1, s.RefCount())
	s.Release()
	require.EqualValues(t, 0, s.RefCount())
}

func TestConstFromMutableCopiesNotAlias(t *testing.T) {
	m := buffer.NewMutable(4)
	require.NoError(t, m.Append([]byte("abc")))
	c := m.Freeze()

	require.NoError(t, m.Append([]byte("def")))
	require.Equal(t, "abc", string(c.Bytes()))
	require.Equal(t, "abcdef", string(m.Bytes()))
}

func TestConstFromSharedAliasesAndRefcounts(t *testing.T) {
	s := buffer.NewShared([]byte("payload"))
	c := buffer.NewConstFromShared(s)
	require.EqualValues(t, 2, s.RefCount())

	c.Release()
	require.EqualValues(t, 1, s.RefCount())
	s.Release()
}

func TestMutableSealMovesSourceToEmpty(t *testing.T) {
	m := buffer.NewMutable(4)
	require.NoError(t, m.Append([]byte("abc")))

	sh := m.Seal()
	require.Equal(t, "abc", string(sh.Bytes()))
	require.Equal(t, 0, m.Len())
	require.Nil(t, m.Bytes())
	sh.Release()
}

func TestSliceOutOfRangeFails(t *testing.T) {
	s := buffer.NewShared([]byte("abc"))
	defer s.Release()
	_, err := s.Slice(2, 5)
	require.Error(t, err)
}
