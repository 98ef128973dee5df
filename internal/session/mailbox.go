package session

import "sync"

// mailbox is an unbounded FIFO of loop tasks. Producers never block, so the
// transport read goroutine can post while the loop waits on Disconnect.
type mailbox struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(fn func()) {
	m.mu.Lock()
	m.items = append(m.items, fn)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []func() {
	m.mu.Lock()
	items := m.items
	m.items = nil
	m.mu.Unlock()
	return items
}
