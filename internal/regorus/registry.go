package regorus

import (
	"slices"
	"strings"
	"sync"
)

// Registry owns every Card, keyed by interface name. Exactly one card
// exists per name and cards are never removed.
//
// Lock discipline: mu is held across the whole find-then-insert sequence in
// FindOrCreate and for map reads. It is never held while transmitting or
// while handlers run.
type Registry struct {
	mu     sync.RWMutex
	cards  map[string]*Card
	budget int
}

// NewRegistry creates an empty registry whose cards start with the given
// retry budget. A non-positive budget selects DefaultRetryBudget.
func NewRegistry(budget int) *Registry {
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	return &Registry{
		cards:  make(map[string]*Card),
		budget: budget,
	}
}

// FindOrCreate returns the card registered for name, creating it in
// Detecting state with a full budget when absent. created reports whether
// this call inserted the card. Concurrent calls for one name yield the
// same card and exactly one created=true.
func (r *Registry) FindOrCreate(name string, iface Interface) (*Card, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cards[name]; ok {
		return c, false
	}

	c := newCard(name, iface, r.budget)
	r.cards[name] = c
	return c, true
}

// StatusOf returns the status of the card for name.
func (r *Registry) StatusOf(name string) (Status, bool) {
	r.mu.RLock()
	c, ok := r.cards[name]
	r.mu.RUnlock()

	if !ok {
		return StatusDetecting, false
	}
	return c.Status(), true
}

// Lookup returns the card for name with an extra reference taken for the
// caller, who must release it when done.
func (r *Registry) Lookup(name string) (*Card, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cards[name]
	if ok {
		c.acquire()
	}
	return c, ok
}

// Len returns the number of registered cards.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cards)
}

// Cards returns all cards sorted by name.
func (r *Registry) Cards() []*Card {
	r.mu.RLock()
	out := make([]*Card, 0, len(r.cards))
	for _, c := range r.cards {
		out = append(out, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Card) int {
		return strings.Compare(a.name, b.name)
	})
	return out
}
