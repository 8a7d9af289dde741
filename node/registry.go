package node

import (
	"context"
	"fmt"
	"sort"

	"github.com/michcald/loranode/buffer"
)

// Sender writes frames back to a peer.
type Sender interface {
	Send(ctx context.Context, frame []byte) error
}

// Handler serves one command. It reads the whole request from r before
// writing any frame to w, and may write zero or more frames.
type Handler func(ctx context.Context, w Sender, r *buffer.Reader) error

// Group is a named set of handlers.
type Group struct {
	Name     string
	Handlers map[Command]Handler
}

// Registry maps commands to handlers. It is immutable once built.
type Registry struct {
	handlers map[Command]Handler
	owners   map[Command]string
}

// NewRegistry merges groups in order. When two groups register the same
// command, the later group wins.
func NewRegistry(groups ...Group) *Registry {
	r := &Registry{
		handlers: make(map[Command]Handler),
		owners:   make(map[Command]string),
	}
	for _, g := range groups {
		for cmd, h := range g.Handlers {
			r.handlers[cmd] = h
			r.owners[cmd] = g.Name
		}
	}
	return r
}

func (r *Registry) Lookup(cmd Command) (Handler, bool) {
	h, ok := r.handlers[cmd]
	return h, ok
}

// Owner returns the name of the group serving cmd.
func (r *Registry) Owner(cmd Command) string {
	return r.owners[cmd]
}

// Commands returns the registered commands in ascending order.
func (r *Registry) Commands() []Command {
	cmds := make([]Command, 0, len(r.handlers))
	for cmd := range r.handlers {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}

// Role selects the handler groups a node serves.
type Role string

const (
	// RoleCompanion serves a single client application.
	RoleCompanion Role = "companion"
	// RoleRouter additionally serves path management commands.
	RoleRouter Role = "router"
)

// Group names, in composition order.
const (
	GroupMessage  = "message"
	GroupContact  = "contact"
	GroupAdvert   = "advert"
	GroupDevice   = "device"
	GroupSecurity = "security"
	GroupSystem   = "system"
	GroupRouting  = "routing"
)

// roleGroups lists the groups each role is composed from, in merge order.
var roleGroups = map[Role][]string{
	RoleCompanion: {GroupMessage, GroupContact, GroupAdvert, GroupDevice, GroupSecurity, GroupSystem},
	RoleRouter:    {GroupMessage, GroupContact, GroupAdvert, GroupDevice, GroupSecurity, GroupSystem, GroupRouting},
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleGroups[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// composeRole picks the groups of role from available, in role order.
func composeRole(role Role, available map[string]Group) (*Registry, error) {
	names, ok := roleGroups[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	groups := make([]Group, 0, len(names))
	for _, name := range names {
		g, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("role %s needs missing group %s", role, name)
		}
		groups = append(groups, g)
	}
	return NewRegistry(groups...), nil
}
