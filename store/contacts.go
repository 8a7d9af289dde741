package store

import (
	"context"
	"errors"
	"sync"
)

// Contact is a known peer.
type Contact struct {
	PublicKey PublicKey `json:"public_key"`
	Type      uint8     `json:"type"`
	Flags     uint8     `json:"flags"`
	// OutPathLen is the length of OutPath, or -1 when no route is known.
	OutPathLen int8     `json:"out_path_len"`
	OutPath    [64]byte `json:"-"`
	Name       string   `json:"name"`
	LastAdvert uint32   `json:"last_advert"`
	Lat        uint32   `json:"lat"`
	Lon        uint32   `json:"lon"`
}

type ContactStore interface {
	// Put adds c or replaces the contact with the same public key.
	Put(ctx context.Context, c Contact) error
	Get(ctx context.Context, key PublicKey) (Contact, error)
	// List returns the contacts in insertion order.
	List(ctx context.Context) ([]Contact, error)
	Remove(ctx context.Context, key PublicKey) error
}

// MemoryContacts is a ContactStore safe for concurrent use.
type MemoryContacts struct {
	mu    sync.RWMutex
	max   int
	byKey map[PublicKey]int
	list  []Contact
}

// NewMemoryContacts returns an empty store holding at most max contacts.
// A max of zero means unbounded.
func NewMemoryContacts(max int) *MemoryContacts {
	return &MemoryContacts{
		max:   max,
		byKey: make(map[PublicKey]int),
	}
}

// ErrTableFull is returned by Put when the store is at capacity.
var ErrTableFull = errors.New("contact table full")

func (s *MemoryContacts) Put(_ context.Context, c Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byKey[c.PublicKey]; ok {
		s.list[i] = c
		return nil
	}
	if s.max > 0 && len(s.list) >= s.max {
		return ErrTableFull
	}
	s.byKey[c.PublicKey] = len(s.list)
	s.list = append(s.list, c)
	return nil
}

func (s *MemoryContacts) Get(_ context.Context, key PublicKey) (Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byKey[key]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return s.list[i], nil
}

func (s *MemoryContacts) List(_ context.Context) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Contact(nil), s.list...), nil
}

func (s *MemoryContacts) Remove(_ context.Context, key PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byKey[key]
	if !ok {
		return ErrNotFound
	}
	s.list = append(s.list[:i], s.list[i+1:]...)
	delete(s.byKey, key)
	for j := i; j < len(s.list); j++ {
		s.byKey[s.list[j].PublicKey] = j
	}
	return nil
}
