package websocket

import (
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Registry holds at most one peer per role. Every operation is a single
// atomic load, swap or compare-and-swap on the role's slot.
type Registry struct {
	slots [numRoles]atomic.Pointer[Peer]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Bind stores p in the slot for role. A previous occupant is closed
// (best effort) and returned so the caller can report the eviction.
func (reg *Registry) Bind(role Role, p *Peer) *Peer {
	if !role.valid() {
		return nil
	}
	prev := reg.slots[role].Swap(p)
	if prev == nil || prev == p {
		return nil
	}
	prev.Close(websocket.ClosePolicyViolation, "replaced by a newer connection")
	return prev
}

// Resolve returns the current occupant of role, or nil.
func (reg *Registry) Resolve(role Role) *Peer {
	if !role.valid() {
		return nil
	}
	return reg.slots[role].Load()
}

// Clear empties the slot only if it still holds p.
func (reg *Registry) Clear(role Role, p *Peer) bool {
	if !role.valid() || p == nil {
		return false
	}
	return reg.slots[role].CompareAndSwap(p, nil)
}

// Snapshot copies the current occupants of all bound slots.
func (reg *Registry) Snapshot() map[Role]*Peer {
	out := make(map[Role]*Peer, numRoles)
	for _, r := range Roles() {
		if p := reg.slots[r].Load(); p != nil {
			out[r] = p
		}
	}
	return out
}
