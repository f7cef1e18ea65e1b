package events

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// TestPublishSubscribe tests topic routing.
func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 8)
	toolCh := bus.Subscribe(TopicTool, 8)

	bus.Publish(TopicTask, TaskStartedEvent{ID: "n1", Kind: "repo-scan"})
	bus.Publish(TopicTool, ToolCalledEvent{CallID: "c1", Tool: "read_file"})

	if ev := recv(t, taskCh); ev.EventType() != EventTypeTaskStarted {
		t.Errorf("task subscriber got %s", ev.EventType())
	}
	if ev := recv(t, toolCh); ev.EventType() != EventTypeToolCalled {
		t.Errorf("tool subscriber got %s", ev.EventType())
	}

	// No cross-topic leakage.
	select {
	case ev := <-taskCh:
		t.Errorf("task subscriber received unexpected %s", ev.EventType())
	default:
	}
}

// TestSubscribeAll tests cross-topic consumption preserves emission order.
func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.SubscribeAll(16)

	bus.Publish(TopicTask, TaskStartedEvent{ID: "n1"})
	bus.Publish(TopicTool, ToolCalledEvent{CallID: "c1"})
	bus.Publish(TopicTask, TaskCompletedEvent{ID: "n1"})

	want := []string{EventTypeTaskStarted, EventTypeToolCalled, EventTypeTaskCompleted}
	for i, w := range want {
		if ev := recv(t, all); ev.EventType() != w {
			t.Errorf("event %d = %s, want %s", i, ev.EventType(), w)
		}
	}
}

// TestOverflowDropsOldest pins the overflow policy: a full subscriber queue
// drops the oldest event, never blocks the producer.
func TestOverflowDropsOldest(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			bus.Publish(TopicTask, TaskStartedEvent{ID: fmt.Sprintf("n%d", i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber queue")
	}

	// Queue capacity is 2, so the two newest events survive.
	first := recv(t, ch).(TaskStartedEvent)
	second := recv(t, ch).(TaskStartedEvent)
	if first.ID != "n3" || second.ID != "n4" {
		t.Errorf("survivors = %s, %s; want n3, n4 (oldest dropped)", first.ID, second.ID)
	}
}

// TestCloseIdempotent verifies Close can be called twice and that publishing
// after close is a no-op.
func TestCloseIdempotent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicTask, 1)

	bus.Close()
	bus.Close()
	bus.Publish(TopicTask, TaskStartedEvent{ID: "late"})

	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel to be closed and empty")
	}
}

// TestSubscribeAfterClose returns a closed channel rather than panicking.
func TestSubscribeAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()

	ch := bus.Subscribe(TopicTask, 1)
	if _, ok := <-ch; ok {
		t.Error("expected closed channel from Subscribe after Close")
	}
}
