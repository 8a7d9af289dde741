package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) PublicKey {
	var k PublicKey
	k[0] = b
	k[31] = b
	return k
}

func TestContacts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContacts(0)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, s.Put(ctx, Contact{PublicKey: key(1), Name: "alice"}))
	require.NoError(t, s.Put(ctx, Contact{PublicKey: key(2), Name: "bob"}))
	require.NoError(t, s.Put(ctx, Contact{PublicKey: key(1), Name: "alice2"}))

	c, err := s.Get(ctx, key(1))
	require.NoError(t, err)
	require.Equal(t, "alice2", c.Name)

	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "alice2", list[0].Name)
	require.Equal(t, "bob", list[1].Name)

	require.NoError(t, s.Remove(ctx, key(1)))
	require.ErrorIs(t, s.Remove(ctx, key(1)), ErrNotFound)
	_, err = s.Get(ctx, key(1))
	require.ErrorIs(t, err, ErrNotFound)

	c, err = s.Get(ctx, key(2))
	require.NoError(t, err)
	require.Equal(t, "bob", c.Name)
}

func TestContactsCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContacts(1)
	require.NoError(t, s.Put(ctx, Contact{PublicKey: key(1)}))
	require.ErrorIs(t, s.Put(ctx, Contact{PublicKey: key(2)}), ErrTableFull)
	require.NoError(t, s.Put(ctx, Contact{PublicKey: key(1), Name: "update"}))
}

func TestContactsConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContacts(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Put(ctx, Contact{PublicKey: key(byte(i)), Name: fmt.Sprint(i)}))
		}(i)
		go func() {
			defer wg.Done()
			_, err := s.List(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 50)
}

func TestMessagesFIFO(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryMessages(2)

	_, err := s.Pop(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Push(ctx, Message{Timestamp: uint32(i)}))
	}
	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	m, err := s.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(2), m.Timestamp, "oldest message is discarded when full")
	m, err = s.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(3), m.Timestamp)
}

func TestChannels(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChannels()

	ch, err := s.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "Public", ch.Name)
	require.Equal(t, PublicChannelSecret, ch.Secret)

	_, err = s.Get(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, MaxChannels)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, Channel{Index: 1, Name: "ops"}))
	ch, err = s.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "ops", ch.Name)

	require.ErrorIs(t, s.Set(ctx, Channel{Index: MaxChannels}), ErrNotFound)
}

func TestPublicKey(t *testing.T) {
	k := key(0xAB)
	require.Equal(t, [6]byte{0xAB}, k.Prefix())
	text, err := k.MarshalText()
	require.NoError(t, err)
	require.Len(t, text, 64)
	require.Equal(t, "ab", string(text[:2]))
}
