package node

import (
	"sync"
	"time"

	"github.com/michcald/loranode/store"
)

// Advert types announced by a node.
const (
	AdvertTypeChat     uint8 = 1
	AdvertTypeRepeater uint8 = 2
)

// Profile is what a node tells clients and the mesh about itself.
type Profile struct {
	Name       string
	PublicKey  store.PublicKey
	AdvertType uint8
	// Lat and Lon are in micro degrees.
	Lat               int32
	Lon               int32
	MaxTxPower        int8
	ManualAddContacts bool
	BatteryMillivolts uint16
	// AppName is the client name given on AppStart.
	AppName string
}

// Identity holds the node profile and clock. It is safe for concurrent use.
type Identity struct {
	mu          sync.Mutex
	profile     Profile
	clockOffset time.Duration
	now         func() time.Time
}

func NewIdentity(p Profile) *Identity {
	return &Identity{profile: p, now: time.Now}
}

func (id *Identity) Profile() Profile {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.profile
}

// Update applies fn to the profile under the lock.
func (id *Identity) Update(fn func(p *Profile)) {
	id.mu.Lock()
	defer id.mu.Unlock()
	fn(&id.profile)
}

// Now returns the node clock.
func (id *Identity) Now() time.Time {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.now().Add(id.clockOffset)
}

// SetClock moves the node clock to t without touching the system clock.
func (id *Identity) SetClock(t time.Time) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.clockOffset = t.Sub(id.now())
}
