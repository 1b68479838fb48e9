package page

import (
	"strings"
	"sync"

	"github.com/dgnsrekt/reviewsync/internal/update"
)

// Phase is one step of applying an update.
type Phase string

const (
	PhaseApplying     Phase = "applyingUpdate"
	PhaseAppliedModel Phase = "appliedModelUpdate"
	PhaseApplied      Phase = "appliedUpdate"
)

// Event is delivered to bus subscribers.
type Event struct {
	Phase  Phase
	Update update.Update
	HTML   string
	Target Model
}

// Topic builds an event topic such as "appliedUpdate:review" or
// "appliedUpdate:review:12".
func Topic(phase Phase, scope ...string) string {
	return strings.Join(append([]string{string(phase)}, scope...), ":")
}

type subscription struct {
	id int
	fn func(Event)
}

// Bus delivers events synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers fn for topic and returns a function removing it.
func (b *Bus) Subscribe(topic string, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
}

// Emit calls every subscriber of topic. Subscribers may subscribe or
// unsubscribe from inside a callback.
func (b *Bus) Emit(topic string, ev Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
