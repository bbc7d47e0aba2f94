// Package lifecycle holds the account state transition table.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/model"
)

// Event triggers a lifecycle transition.
type Event string

const (
	EventVerify     Event = "verify_email"
	EventSoftDelete Event = "soft_delete"
	EventRestore    Event = "restore"
)

// Option customizes a Machine.
type Option func(*Machine)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(m *Machine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// Machine validates and applies account transitions in memory; persistence is the caller's job.
type Machine struct {
	transitions map[model.State]map[Event]model.State
	now         func() time.Time
}

// New returns the default transition table.
func New(opts ...Option) *Machine {
	m := &Machine{
		transitions: map[model.State]map[Event]model.State{
			model.StateUnverifiedActive: {
				EventVerify:     model.StateVerifiedActive,
				EventSoftDelete: model.StateUnverifiedDeleted,
			},
			model.StateVerifiedActive: {
				EventSoftDelete: model.StateVerifiedDeleted,
			},
			model.StateVerifiedDeleted: {
				EventRestore: model.StateVerifiedActive,
			},
			model.StateUnverifiedDeleted: {
				EventRestore: model.StateUnverifiedActive,
			},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Can reports whether event is legal from the account's current state.
func (m *Machine) Can(a *model.Account, event Event) bool {
	_, ok := m.target(model.StateOf(a), event)
	return ok
}

// Apply moves a to the state reached by event, mutating only the fields that event owns.
func (m *Machine) Apply(a *model.Account, event Event) (model.State, error) {
	from := model.StateOf(a)
	to, ok := m.target(from, event)
	if !ok {
		return from, fmt.Errorf("%w: %s from %s", errs.ErrInvalidTransition, event, from)
	}

	now := m.now().UTC()
	switch event {
	case EventVerify:
		a.Verified = true
		a.VerificationTokenHash = nil
	case EventSoftDelete:
		a.DeletedAt = &now
	case EventRestore:
		a.DeletedAt = nil
	}
	a.UpdatedAt = now
	return to, nil
}

func (m *Machine) target(from model.State, event Event) (model.State, bool) {
	allowed, ok := m.transitions[from]
	if !ok {
		return "", false
	}
	to, ok := allowed[event]
	return to, ok
}
