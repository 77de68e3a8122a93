// internal/events/bus.go
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one occurrence relayed from the page to the host.
type Event struct {
	ID   string
	Name string
	// Args holds the raw JSON arguments the page passed to the bridge.
	Args []json.RawMessage
	Time time.Time
}

// Arg returns the i-th argument or nil when the page passed fewer.
func (e Event) Arg(i int) json.RawMessage {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

type subscriber struct {
	ch    chan Event
	names map[string]struct{} // nil means every event
}

func (s *subscriber) wants(name string) bool {
	if s.names == nil {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// Bus fans events out to subscribers by name. Publish never blocks: bridges
// call it from the browser driver's event loop.
type Bus struct {
	logger     *zap.Logger
	bufferSize int

	mu          sync.RWMutex
	subscribers []*subscriber
	isShutdown  bool
}

// NewBus creates a bus whose subscriber channels hold bufferSize events.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		logger:     logger.Named("events"),
		bufferSize: bufferSize,
	}
}

// Subscribe returns a channel receiving the named events, or every event
// when no name is given. The returned func unsubscribes and closes the channel.
func (b *Bus) Subscribe(names ...string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdown {
		closedCh := make(chan Event)
		close(closedCh)
		return closedCh, func() {}
	}

	sub := &subscriber{ch: make(chan Event, b.bufferSize)}
	if len(names) > 0 {
		sub.names = make(map[string]struct{}, len(names))
		for _, n := range names {
			sub.names[n] = struct{}{}
		}
	}
	b.subscribers = append(b.subscribers, sub)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subscribers {
				if s == sub {
					b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
					close(sub.ch)
					break
				}
			}
		})
	}
	return sub.ch, unsubscribe
}

// Publish delivers an event to every interested subscriber. Subscribers with
// a full buffer miss the event.
func (b *Bus) Publish(name string, args ...json.RawMessage) {
	ev := Event{
		ID:   uuid.New().String(),
		Name: name,
		Args: args,
		Time: time.Now().UTC(),
	}

	// Sends happen under the read lock so unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.isShutdown {
		return
	}

	for _, sub := range b.subscribers {
		if !sub.wants(name) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("Subscriber buffer full, dropping event.", zap.String("event", name), zap.String("id", ev.ID))
		}
	}
}

// Shutdown closes every subscriber channel. Later publishes are dropped.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdown {
		return
	}
	b.isShutdown = true
	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
	b.logger.Debug("Event bus shut down.")
}
