// Package flow tracks which creation dialogs are open in a console session
// and notifies subscribers of open/close transitions.
//
// One State is built per session and handed to every component that opens,
// closes or reacts to a dialog. Flags are idempotent: opening an open dialog
// (or closing a closed one) changes nothing and notifies no one. Dialogs are
// independent, so the terrain dialog may be open inside the simulation dialog
// and closing the simulation dialog leaves the terrain dialog as it is.
package flow

import (
	"sort"
	"sync"

	"epiconsole/internal/entity"
)

// Dialog names one creation dialog.
type Dialog string

const (
	Terrain    Dialog = "terrain"
	Simulation Dialog = "simulation"
	Virus      Dialog = "virus"
)

// DialogFor returns the creation dialog of an entity kind.
func DialogFor(k entity.Kind) Dialog { return Dialog(k) }

// Transition is a change of one dialog's open flag.
type Transition struct {
	Dialog Dialog
	Open   bool
}

// Closed reports whether t is d's true -> false transition.
func (t Transition) Closed(d Dialog) bool { return t.Dialog == d && !t.Open }

type subscriber struct {
	id int
	fn func(Transition)
}

// State holds the dialog flags of one session.
type State struct {
	mu     sync.Mutex
	open   map[Dialog]bool
	subs   []subscriber
	nextID int
}

// New returns a State with every dialog closed.
func New() *State {
	return &State{open: make(map[Dialog]bool)}
}

// IsOpen reports whether d is open.
func (s *State) IsOpen(d Dialog) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[d]
}

// Snapshot returns the currently open dialogs in name order.
func (s *State) Snapshot() []Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Dialog, 0, len(s.open))
	for d, open := range s.open {
		if open {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RequestOpen opens d. It reports whether the flag changed.
func (s *State) RequestOpen(d Dialog) bool { return s.set(d, true) }

// RequestClose closes d. It reports whether the flag changed.
func (s *State) RequestClose(d Dialog) bool { return s.set(d, false) }

// Subscribe registers fn for every transition. Notifications are delivered
// synchronously, in subscription order, after the flag has changed and
// outside the state lock, so fn may read or toggle flags. The returned
// function removes the subscription; calling it twice is harmless.
func (s *State) Subscribe(fn func(Transition)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// OnClose registers fn for d's true -> false transitions only.
func (s *State) OnClose(d Dialog, fn func()) (cancel func()) {
	return s.Subscribe(func(t Transition) {
		if t.Closed(d) {
			fn()
		}
	})
}

func (s *State) set(d Dialog, open bool) bool {
	s.mu.Lock()
	if s.open[d] == open {
		s.mu.Unlock()
		return false
	}
	s.open[d] = open
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	t := Transition{Dialog: d, Open: open}
	for _, sub := range subs {
		sub.fn(t)
	}
	return true
}
