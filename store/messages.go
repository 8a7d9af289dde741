package store

import (
	"context"
	"sync"
)

// Message is a text message waiting to be synced by a client.
type Message struct {
	// Channel is set for group messages; ChannelIdx is then meaningful and
	// SenderPrefix is not.
	Channel      bool    `json:"channel"`
	ChannelIdx   uint8   `json:"channel_idx"`
	SenderPrefix [6]byte `json:"-"`
	PathLen      uint8   `json:"path_len"`
	TextType     uint8   `json:"text_type"`
	Attempt      uint8   `json:"attempt"`
	Timestamp    uint32  `json:"timestamp"`
	Text         string  `json:"text"`
}

type MessageStore interface {
	Push(ctx context.Context, m Message) error
	// Pop removes and returns the oldest message. It returns ErrNotFound
	// when the queue is empty.
	Pop(ctx context.Context) (Message, error)
	Len(ctx context.Context) (int, error)
}

// MemoryMessages is a bounded FIFO safe for concurrent use. When full, the
// oldest message is discarded.
type MemoryMessages struct {
	mu    sync.Mutex
	max   int
	queue []Message
}

// NewMemoryMessages returns an empty queue holding at most max messages.
// A max of zero means unbounded.
func NewMemoryMessages(max int) *MemoryMessages {
	return &MemoryMessages{max: max}
}

func (s *MemoryMessages) Push(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.max > 0 && len(s.queue) >= s.max {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, m)
	return nil
}

func (s *MemoryMessages) Pop(_ context.Context) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return Message{}, ErrNotFound
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m, nil
}

func (s *MemoryMessages) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue), nil
}
