package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	out, err := Encode(OutboundMarker, []byte{0x04})
	require.NoError(t, err)
	require.Equal(t, []byte{'>', 0x01, 0x00, 0x04}, out)

	_, err = Encode(OutboundMarker, make([]byte, MaxFrameLen+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecoderFragmentedAndCoalesced(t *testing.T) {
	a, _ := Encode(InboundMarker, []byte("first"))
	b, _ := Encode(InboundMarker, []byte("second"))
	stream := append(a, b...)

	// one byte at a time
	d := NewDecoder(InboundMarker)
	var got [][]byte
	for _, c := range stream {
		d.Feed([]byte{c})
		for {
			f, ok := d.Next()
			if !ok {
				break
			}
			got = append(got, f)
		}
	}
	require.Equal(t, [][]byte{[]byte("first"), []byte("second")}, got)

	// everything in one read
	d = NewDecoder(InboundMarker)
	d.Feed(stream)
	f, ok := d.Next()
	require.True(t, ok)
	require.Equal(t, []byte("first"), f)
	f, ok = d.Next()
	require.True(t, ok)
	require.Equal(t, []byte("second"), f)
	_, ok = d.Next()
	require.False(t, ok)
}

func TestDecoderResynchronises(t *testing.T) {
	good, _ := Encode(InboundMarker, []byte{0x16, 0x03})
	d := NewDecoder(InboundMarker)
	d.Feed([]byte{0x00, 0xFF, '>', 0x01, 0x00, 0x01})
	// a marker announcing an impossible length
	d.Feed([]byte{'<', 0xFF, 0xFF})
	d.Feed(good)

	f, ok := d.Next()
	require.True(t, ok)
	require.Equal(t, []byte{0x16, 0x03}, f)
	require.Equal(t, 9, d.Skipped())
}

func TestDecoderSkipsEmptyFrames(t *testing.T) {
	d := NewDecoder(InboundMarker)
	d.Feed([]byte{'<', 0, 0})
	d.Feed(bytes.Repeat([]byte{'<', 1, 0, 7}, 1))
	f, ok := d.Next()
	require.True(t, ok)
	require.Equal(t, []byte{7}, f)
}
