package driver

import (
	"context"
	"sync"
)

// fifoMutex is a mutex whose waiters acquire in arrival order. sync.Mutex
// makes no fairness promise under contention, but drive requests for one
// dialog must be served in the order they arrived, so waiters queue on
// channels handed off one at a time.
type fifoMutex struct {
	mu     sync.Mutex
	locked bool
	queue  []chan struct{}
}

// Lock blocks until the mutex is held or ctx is done. On ctx error the
// waiter's queue slot is abandoned and the slot's eventual grant is passed
// along to the next waiter.
func (m *fifoMutex) Lock(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	grant := make(chan struct{})
	m.queue = append(m.queue, grant)
	m.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, ch := range m.queue {
			if ch == grant {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				m.mu.Unlock()
				return ctx.Err()
			}
		}
		m.mu.Unlock()
		// The grant raced ctx cancellation; we hold the lock, so pass it on.
		m.Unlock()
		return ctx.Err()
	}
}

// TryLock acquires the mutex only if it is free and nobody is queued.
func (m *fifoMutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked || len(m.queue) > 0 {
		return false
	}
	m.locked = true
	return true
}

// Unlock hands the mutex to the oldest waiter, or frees it.
func (m *fifoMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		grant := m.queue[0]
		m.queue = m.queue[1:]
		close(grant)
		return
	}
	m.locked = false
}

// lockTable lazily allocates one named fifoMutex per key. Entries are
// never removed; a dialog's lock identity must be stable for its lifetime.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*fifoMutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*fifoMutex)}
}

func (t *lockTable) get(key string) *fifoMutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		l = &fifoMutex{}
		t.locks[key] = l
	}
	return l
}
