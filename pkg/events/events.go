package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventTaskCreated   EventType = "task.created"
	EventTaskStarted   EventType = "task.started"
	EventTaskPaused    EventType = "task.paused"
	EventTaskResumed   EventType = "task.resumed"
	EventTaskSucceeded EventType = "task.succeeded"
	EventTaskFailed    EventType = "task.failed"
	EventTaskDeleted   EventType = "task.deleted"

	EventSnatchAttempt    EventType = "snatch.attempt"
	EventInstanceLaunched EventType = "instance.launched"

	EventProfileCreated EventType = "profile.created"
	EventProfileDeleted EventType = "profile.deleted"
)

// Event represents one orchestrator event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	TaskID    string
	Alias     string
	Message   string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

const subscriberBuffer = 50

// Broker fans events out to subscribers. Publish delivers inline on
// the caller's goroutine; a subscriber that stops draining its buffer
// loses events instead of stalling the publisher.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	stopped     bool
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
	}
}

// Stop closes every subscriber channel; later Publish calls are no-ops.
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	for sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = make(map[Subscriber]bool)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberBuffer)
	if b.stopped {
		close(sub)
		return sub
	}
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish stamps the event and delivers it to every subscriber with
// buffer room. It never blocks.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
