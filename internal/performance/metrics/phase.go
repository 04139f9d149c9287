package metrics

import (
	"slices"
	"sync"
	"time"
)

// phaseLog is the current phase and the transitions that led to it.
type phaseLog struct {
	mu      sync.RWMutex
	current Phase
	changes []PhaseChange
}

// enter records a transition unless p is already current.
func (l *phaseLog) enter(p Phase, at time.Time, requests int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != p {
		l.current = p
		l.changes = append(l.changes, PhaseChange{Phase: p, Timestamp: at, Requests: requests})
	}
}

func (l *phaseLog) get() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *phaseLog) history() []PhaseChange {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.changes)
}
