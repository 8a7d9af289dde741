package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kit/kit/log"

	"github.com/michcald/loranode/store"
	"github.com/michcald/loranode/sx1262"
)

// Radio is the part of the radio driver the handlers drive.
type Radio interface {
	Config() sx1262.RadioConfig
	Configure(c sx1262.RadioConfig) error
	SetTxPower(dbm int8) error
	Send(ctx context.Context, p []byte) error
	Reset() error
}

// ErrNoRadio is returned by the offline radio on transmit.
var ErrNoRadio = errors.New("no radio attached")

// offlineRadio keeps the radio settings when no hardware is attached.
type offlineRadio struct {
	mu     sync.Mutex
	config sx1262.RadioConfig
}

func (r *offlineRadio) Config() sx1262.RadioConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

func (r *offlineRadio) Configure(c sx1262.RadioConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = c
	return nil
}

func (r *offlineRadio) SetTxPower(dbm int8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.config
	c.TxPower = dbm
	if err := c.Validate(); err != nil {
		return err
	}
	r.config = c
	return nil
}

func (r *offlineRadio) Send(context.Context, []byte) error { return ErrNoRadio }

func (r *offlineRadio) Reset() error { return nil }

// Options configures a Node.
type Options struct {
	Role     Role
	Identity *Identity
	Contacts store.ContactStore
	Messages store.MessageStore
	Channels store.ChannelStore
	// Radio is nil when running without hardware. Radio settings are then
	// kept in memory and raw transmits are refused.
	Radio  Radio
	Logger log.Logger
}

// Node is a dispatcher with its services bound for one role.
type Node struct {
	*Dispatcher

	Role     Role
	Identity *Identity
	Contacts store.ContactStore
	Messages store.MessageStore
	Channels store.ChannelStore
	Radio    Radio
	online   bool
}

// New builds the services and composes the registry for o.Role.
func New(o Options) (*Node, error) {
	if o.Role == "" {
		o.Role = RoleCompanion
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.Identity == nil {
		return nil, errors.New("node: identity is required")
	}
	if o.Contacts == nil {
		o.Contacts = store.NewMemoryContacts(0)
	}
	if o.Messages == nil {
		o.Messages = store.NewMemoryMessages(0)
	}
	if o.Channels == nil {
		o.Channels = store.NewMemoryChannels()
	}
	online := o.Radio != nil
	if !online {
		o.Radio = &offlineRadio{config: sx1262.DefaultRadioConfig()}
	}

	n := &Node{
		Dispatcher: NewDispatcher(o.Logger, nil),
		Role:       o.Role,
		Identity:   o.Identity,
		Contacts:   o.Contacts,
		Messages:   o.Messages,
		Channels:   o.Channels,
		Radio:      o.Radio,
		online:     online,
	}

	services := []interface{ group() Group }{
		&messageService{messages: n.Messages, pusher: n.Dispatcher},
		&contactService{contacts: n.Contacts, identity: n.Identity},
		&advertService{identity: n.Identity, pusher: n.Dispatcher},
		&deviceService{identity: n.Identity, radio: n.Radio, channels: n.Channels},
		&routingService{contacts: n.Contacts},
		&securityService{},
		newSystemService(n.Identity, n.Radio, online),
	}
	available := make(map[string]Group, len(services))
	for _, s := range services {
		g := s.group()
		available[g.Name] = g
	}
	reg, err := composeRole(o.Role, available)
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	n.setRegistry(reg)
	return n, nil
}

// Online reports whether a radio is attached.
func (n *Node) Online() bool {
	return n.online
}

// pusher sends unsolicited frames to every peer but the requester.
type pusher interface {
	Broadcast(ctx context.Context, frame []byte, except Sender)
}
