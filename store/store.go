// Package store holds the contacts, messages and channels shared by every
// transport served by the node.
package store

import (
	"encoding/hex"
	"errors"
)

var ErrNotFound = errors.New("not found")

// PublicKey identifies a contact.
type PublicKey [32]byte

// Prefix returns the first six bytes, which the protocol uses to address
// contacts in messages.
func (k PublicKey) Prefix() [6]byte {
	var p [6]byte
	copy(p[:], k[:6])
	return p
}

func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText encodes the key as hex.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
