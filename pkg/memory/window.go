package memory

import "sync"

const DefaultWindowSize = 10

// Window is the short-term working memory: the most recent N messages in
// arrival order.
type Window struct {
	mu       sync.Mutex
	items    []*Message
	capacity int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{capacity: capacity}
}

// Push appends msg, evicting the oldest message once capacity is exceeded.
func (w *Window) Push(msg *Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.items = append(w.items, msg)
	if len(w.items) > w.capacity {
		w.items = append([]*Message(nil), w.items[len(w.items)-w.capacity:]...)
	}
}

// Snapshot returns the window contents, oldest first.
func (w *Window) Snapshot() []*Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Message(nil), w.items...)
}

// Last returns up to n of the most recent messages, oldest first.
func (w *Window) Last(n int) []*Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n <= 0 || len(w.items) == 0 {
		return nil
	}
	if n > len(w.items) {
		n = len(w.items)
	}
	return append([]*Message(nil), w.items[len(w.items)-n:]...)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

func (w *Window) Capacity() int { return w.capacity }

func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = nil
}
