package store

import (
	"context"
	"sync"
)

// MaxChannels is the size of the channel table.
const MaxChannels = 8

// Channel is a group channel with its shared secret.
type Channel struct {
	Index  uint8    `json:"index"`
	Name   string   `json:"name"`
	Secret [16]byte `json:"-"`
}

type ChannelStore interface {
	Get(ctx context.Context, idx uint8) (Channel, error)
	Set(ctx context.Context, ch Channel) error
}

// MemoryChannels is a fixed ChannelStore safe for concurrent use.
type MemoryChannels struct {
	mu    sync.RWMutex
	slots [MaxChannels]*Channel
}

// PublicChannelSecret is the well-known key of the default public channel.
var PublicChannelSecret = [16]byte{
	0x8b, 0x33, 0x87, 0xe9, 0xc5, 0xcd, 0xea, 0x6a,
	0xc9, 0xe5, 0xed, 0xba, 0xa1, 0x15, 0xcd, 0x72,
}

// NewMemoryChannels returns a table with the public channel at index 0.
func NewMemoryChannels() *MemoryChannels {
	s := &MemoryChannels{}
	s.slots[0] = &Channel{Index: 0, Name: "Public", Secret: PublicChannelSecret}
	return s
}

func (s *MemoryChannels) Get(_ context.Context, idx uint8) (Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(idx) >= MaxChannels || s.slots[idx] == nil {
		return Channel{}, ErrNotFound
	}
	return *s.slots[idx], nil
}

func (s *MemoryChannels) Set(_ context.Context, ch Channel) error {
	if int(ch.Index) >= MaxChannels {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots[ch.Index] = &ch
	return nil
}
