package chat

import "sync"

// mailbox is an unbounded FIFO of events. push never blocks, so a slow
// registry can't stall the connections feeding it.
type mailbox struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(evt Event) {
	m.mu.Lock()
	m.queue = append(m.queue, evt)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// drain hands back everything queued so far, oldest first.
func (m *mailbox) drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.queue
	m.queue = nil
	return events
}

func (m *mailbox) ready() <-chan struct{} {
	return m.notify
}
