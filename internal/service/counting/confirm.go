package counting

import (
	"sync"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// OverflowPolicy decides which count changes need an explicit confirmation.
type OverflowPolicy int

const (
	// ConfirmOnCrossing asks only when a count moves from at-or-below stock to above it.
	// Further increments past an acknowledged overflow go through silently.
	ConfirmOnCrossing OverflowPolicy = iota
	// ConfirmEveryOverflow asks on every increase that ends above stock.
	ConfirmEveryOverflow
)

// RequiresConfirmation applies the policy. A stock of zero never asks: there is no
// system quantity to exceed.
func (p OverflowPolicy) RequiresConfirmation(prev, next, stock int) bool {
	if stock <= 0 || next <= stock {
		return false
	}
	switch p {
	case ConfirmEveryOverflow:
		return next > prev
	default:
		return prev <= stock
	}
}

// GateState is the state of the confirmation workflow.
type GateState string

const (
	StateIdle                 GateState = "idle"
	StateAwaitingConfirmation GateState = "awaiting_confirmation"
)

// Gate holds at most one pending confirmation. It never stacks: a second proposal
// while one is pending is refused.
//
// A pending confirmation does not freeze the whole session. Mutations of the pending
// item and list-wide operations wait, as do changes to other items that would need a
// confirmation of their own. Plain counting of other items carries on.
type Gate struct {
	mu      sync.Mutex
	pending *models.PendingConfirmation
}

// NewGate returns an idle gate.
func NewGate() *Gate {
	return &Gate{}
}

// State reports the current state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return StateAwaitingConfirmation
	}
	return StateIdle
}

// Propose moves Idle -> AwaitingConfirmation. It fails with ErrConflictPending when a
// confirmation is already outstanding.
func (g *Gate) Propose(p models.PendingConfirmation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return models.ConflictPending(*g.pending)
	}
	g.pending = &p
	return nil
}

// Pending returns a copy of the outstanding confirmation, or nil.
func (g *Gate) Pending() *models.PendingConfirmation {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return nil
	}
	p := *g.pending
	return &p
}

// Blocks reports whether mutations of key must wait for the pending confirmation.
func (g *Gate) Blocks(key models.ItemKey) (models.PendingConfirmation, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil || g.pending.Key() != key {
		return models.PendingConfirmation{}, false
	}
	return *g.pending, true
}

// Release moves back to Idle and returns what was pending.
func (g *Gate) Release() (models.PendingConfirmation, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return models.PendingConfirmation{}, false
	}
	p := *g.pending
	g.pending = nil
	return p, true
}
