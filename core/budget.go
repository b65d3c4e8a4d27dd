package core

import (
	"fmt"
	"sync"
)

// CallBudget bounds the number of model calls a turn may make across every
// branch of the graph. A single budget is shared by all concurrently running
// nodes.
type CallBudget struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewCallBudget creates a budget of limit calls. A zero limit means
// unlimited.
func NewCallBudget(limit int) *CallBudget {
	return &CallBudget{limit: limit}
}

// Spend consumes one call and returns how many remain, -1 when the budget is
// unlimited. Crossing the limit returns an error; the budget stays exhausted
// for every later caller.
func (b *CallBudget) Spend() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.used++
	if b.limit > 0 && b.used > b.limit {
		return 0, fmt.Errorf("exceeded max model calls: %d", b.limit)
	}
	if b.limit == 0 {
		return -1, nil
	}
	return b.limit - b.used, nil
}

// Used returns the number of calls consumed so far.
func (b *CallBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.used
}
