package bus_test

import (
	"testing"
	"time"

	"github.com/openintentos/openintent/internal/bus"
)

func receive(t *testing.T, sub *bus.Subscription) bus.Event {
	t.Helper()
	select {
	case ev := <-sub.Ch():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return bus.Event{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(bus.TopicDevTaskStageChanged)
	defer b.Unsubscribe(sub)

	b.Publish(bus.TopicDevTaskStageChanged, bus.DevTaskStageEvent{TaskID: "t1", NewStatus: "coding"})

	ev := receive(t, sub)
	if ev.Topic != bus.TopicDevTaskStageChanged {
		t.Fatalf("topic = %q", ev.Topic)
	}
	payload, ok := ev.Payload.(bus.DevTaskStageEvent)
	if !ok {
		t.Fatalf("payload type = %T", ev.Payload)
	}
	if payload.TaskID != "t1" || payload.NewStatus != "coding" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestPrefixMatching(t *testing.T) {
	b := bus.New()
	devSub := b.Subscribe("devtask.")
	routerSub := b.Subscribe("router.")
	allSub := b.Subscribe("")
	defer b.Unsubscribe(devSub)
	defer b.Unsubscribe(routerSub)
	defer b.Unsubscribe(allSub)

	b.Publish(bus.TopicDevTaskProgress, bus.DevTaskProgressEvent{TaskID: "t1"})

	if ev := receive(t, devSub); ev.Topic != bus.TopicDevTaskProgress {
		t.Fatalf("dev subscriber got %q", ev.Topic)
	}
	if ev := receive(t, allSub); ev.Topic != bus.TopicDevTaskProgress {
		t.Fatalf("wildcard subscriber got %q", ev.Topic)
	}
	select {
	case ev := <-routerSub.Ch():
		t.Fatalf("router subscriber should not receive %q", ev.Topic)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe("")
	if b.SubscriberCount() != 1 {
		t.Fatalf("count = %d", b.SubscriberCount())
	}

	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Fatalf("count after unsubscribe = %d", b.SubscriberCount())
	}
	if _, open := <-sub.Ch(); open {
		t.Fatal("channel should be closed")
	}

	// Double unsubscribe is a no-op.
	b.Unsubscribe(sub)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	// Overfill the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish("executor.step_finished", bus.ExecutorStepEvent{StepIndex: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
