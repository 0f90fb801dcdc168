package session

import "sync"

// mailbox is an unbounded FIFO of work items drained by one goroutine.
// Posting never blocks.
type mailbox struct {
	mu     sync.Mutex
	queue  []func()
	open   bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// post enqueues fn. It reports false when the mailbox is closed.
func (m *mailbox) post(fn func()) bool {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// drain removes and returns every queued item in order.
func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

func (m *mailbox) setOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = open
	if open {
		m.queue = nil
	}
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
