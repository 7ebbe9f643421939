package segmenter

import (
	"sync"
	"time"

	"github.com/balkashynov/tally/internal/capture"
)

// KindActivityUpdate is the only message kind segmenters exchange.
const KindActivityUpdate = "activity-update"

// Message announces which surface is in the foreground.
type Message struct {
	Kind      string          `json:"kind"`
	SurfaceID string          `json:"surface_id"`
	Surface   capture.Surface `json:"surface"`
	Visible   bool            `json:"visible"`
	At        time.Time       `json:"at"`
}

// Bus carries activity-update messages between the segmenters of one
// client.
type Bus interface {
	Publish(msg Message)
	// Subscribe returns a message channel and a function that cancels the
	// subscription and closes the channel.
	Subscribe() (<-chan Message, func())
}

// ChannelBus is an in-process Bus. Every live subscriber gets every message;
// a subscriber that falls behind loses its oldest pending message, never the
// newest.
type ChannelBus struct {
	mu     sync.Mutex
	subs   map[int]chan Message
	nextID int
	buffer int
}

func NewChannelBus() *ChannelBus {
	return &ChannelBus{subs: make(map[int]chan Message), buffer: 16}
}

func (b *ChannelBus) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		for {
			select {
			case ch <- msg:
			default:
				// full: drop the oldest and retry
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func (b *ChannelBus) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Message, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
