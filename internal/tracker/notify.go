package tracker

import "sync"

// Notes is a bounded, non-blocking notification queue. When full the
// oldest note is dropped.
type Notes struct {
	mu sync.Mutex
	ch chan string
}

func NewNotes(size int) *Notes {
	if size < 1 {
		size = 1
	}
	return &Notes{ch: make(chan string, size)}
}

func (n *Notes) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		select {
		case n.ch <- msg:
			return
		default:
		}
		select {
		case <-n.ch:
		default:
		}
	}
}

// C delivers notes in arrival order.
func (n *Notes) C() <-chan string { return n.ch }
