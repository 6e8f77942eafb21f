// Package bus is a small in-process pub/sub fabric. Subscribers match on a
// topic prefix and receive events over a buffered channel; delivery is
// non-blocking, so a slow consumer loses events rather than stalling the
// publisher.
package bus

import (
	"strings"
	"sync"
)

const defaultBufferSize = 100

// Event is a message published on the bus.
type Event struct {
	Topic   string
	Payload any
}

// Topics published by the runtime.
const (
	TopicDevTaskStageChanged = "devtask.stage_changed"
	TopicDevTaskProgress     = "devtask.progress"
	TopicRouterTaskCompleted = "router.task_completed"
	TopicExecutorStep        = "executor.step_finished"
)

// DevTaskStageEvent is published on every dev-task stage transition.
type DevTaskStageEvent struct {
	TaskID    string
	ChatID    int64
	OldStatus string
	NewStatus string
	Detail    string
}

// DevTaskProgressEvent carries a free-form operator update for a dev task.
type DevTaskProgressEvent struct {
	TaskID  string
	ChatID  int64
	Message string
}

// RouterTaskEvent is published when one routed sub-task finishes.
type RouterTaskEvent struct {
	TaskIndex int
	Tier      string
	Model     string
	Text      string
	Err       string
}

// ExecutorStepEvent is published when a plan step reaches a terminal status.
type ExecutorStepEvent struct {
	StepIndex int
	Status    string
	Attempts  int
}

// Subscription is an active prefix subscription.
type Subscription struct {
	id     int
	prefix string
	ch     chan Event
}

// Ch returns the channel to receive events on.
func (s *Subscription) Ch() <-chan Event {
	return s.ch
}

// Bus fans events out to prefix-matched subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
}

func New() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe registers interest in topics with the given prefix. An empty
// prefix matches everything.
func (b *Bus) Subscribe(topicPrefix string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		prefix: topicPrefix,
		ch:     make(chan Event, defaultBufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish delivers an event to every matching subscriber without blocking;
// full buffers drop the event for that subscriber.
func (b *Bus) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.prefix == "" || strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}

// SubscriberCount reports active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
