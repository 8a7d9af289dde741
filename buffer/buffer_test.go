package buffer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	var w Writer
	w.WriteU8(0xAB)
	w.WriteI8(-128)
	w.WriteU16(0xBEEF)
	w.WriteU32(math.MaxUint32 - 1)
	w.WriteI32(math.MinInt32)
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteCString("node", 8)
	w.WriteString("tail")

	r := NewReader(w.Bytes())
	u8, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), u8)

	i8, err := r.ReadI8()
	require.NoError(t, err)
	assert.Equal(t, int8(-128), i8)

	u16, err := r.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), u16)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32-1), u32)

	i32, err := r.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), i32)

	raw, err := r.ReadBytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)

	name, err := r.ReadCString(8)
	require.NoError(t, err)
	assert.Equal(t, "node", name)

	assert.Equal(t, "tail", r.ReadString())
	assert.Zero(t, r.Len())
}

func TestLittleEndianLayout(t *testing.T) {
	var w Writer
	w.WriteU16(0x0102)
	w.WriteU32(0x03040506)
	w.WriteI32(-2)
	assert.Equal(t, []byte{0x02, 0x01, 0x06, 0x05, 0x04, 0x03, 0xFE, 0xFF, 0xFF, 0xFF}, w.Bytes())
}

func TestNewWriterCode(t *testing.T) {
	w := NewWriter(0x04)
	assert.Equal(t, []byte{0x04}, w.Bytes())
	assert.Equal(t, 1, w.Len())
}

func TestCStringLength(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want []byte
	}{
		{"short", "ab", 5, []byte{'a', 'b', 0, 0, 0}},
		{"exact fit", "abcd", 5, []byte{'a', 'b', 'c', 'd', 0}},
		{"equal to size", "abcde", 5, []byte{'a', 'b', 'c', 'd', 0}},
		{"longer", "abcdefgh", 5, []byte{'a', 'b', 'c', 'd', 0}},
		{"empty", "", 3, []byte{0, 0, 0}},
		{"size one", "abc", 1, []byte{0}},
		{"size zero", "abc", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w Writer
			w.WriteCString(tt.text, tt.size)
			assert.Equal(t, tt.want, w.Bytes())
		})
	}
}

func TestCStringKeepsRunesWhole(t *testing.T) {
	// "aé" is 61 C3 A9; a 3 byte field only has room for two bytes of text.
	var w Writer
	w.WriteCString("aé", 3)
	assert.Equal(t, []byte{'a', 0, 0}, w.Bytes())

	w = Writer{}
	w.WriteCString("日本", 5)
	assert.Equal(t, []byte{0xE6, 0x97, 0xA5, 0, 0}, w.Bytes())
}

func TestUnderflow(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_, err := r.ReadU32()
	require.ErrorIs(t, err, ErrUnderflow)

	// a failed read does not move the cursor
	v, err := r.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v)

	_, err = r.ReadBytes(2)
	require.ErrorIs(t, err, ErrUnderflow)
	_, err = r.ReadCString(2)
	require.ErrorIs(t, err, ErrUnderflow)
	require.ErrorIs(t, r.ReadFull(make([]byte, 4)), ErrUnderflow)

	u8, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), u8)
	_, err = r.ReadU8()
	require.ErrorIs(t, err, ErrUnderflow)
}

func TestRemaining(t *testing.T) {
	src := []byte{9, 8, 7}
	r := NewReader(src)
	_, err := r.ReadU8()
	require.NoError(t, err)

	rest := r.Remaining()
	assert.Equal(t, []byte{8, 7}, rest)
	rest[0] = 0
	assert.Equal(t, byte(8), src[1], "Remaining must not alias the frame")
	assert.Equal(t, []byte{}, r.Remaining())
	assert.Equal(t, "", r.ReadString())
}

func TestCStringStopsAtNul(t *testing.T) {
	r := NewReader([]byte{'h', 'i', 0, 'x', 'y', 1})
	s, err := r.ReadCString(5)
	require.NoError(t, err)
	assert.Equal(t, "hi", s)
	assert.Equal(t, 1, r.Len())
}
