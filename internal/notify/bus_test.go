package notify

import (
	"context"
	"testing"
)

func TestLocalDeliversSynchronously(t *testing.T) {
	bus := NewLocal()
	var got []Event
	cancel := bus.Subscribe(func(evt Event) { got = append(got, evt) })
	defer cancel()

	evt := Event{Key: "courseSessions", Value: []byte(`[]`)}
	if err := bus.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	// Local delivery is synchronous: the event is visible immediately.
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Key != "courseSessions" || string(got[0].Value) != `[]` {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestLocalCancelStopsDelivery(t *testing.T) {
	bus := NewLocal()
	count := 0
	cancel := bus.Subscribe(func(Event) { count++ })

	_ = bus.Publish(context.Background(), Event{Key: "k"})
	cancel()
	_ = bus.Publish(context.Background(), Event{Key: "k"})

	if count != 1 {
		t.Errorf("expected 1 delivery after cancel, got %d", count)
	}
}

func TestLocalMultipleSubscribers(t *testing.T) {
	bus := NewLocal()
	a, b := 0, 0
	defer bus.Subscribe(func(Event) { a++ })()
	defer bus.Subscribe(func(Event) { b++ })()

	_ = bus.Publish(context.Background(), Event{Key: "k"})
	if a != 1 || b != 1 {
		t.Errorf("expected both subscribers notified, got a=%d b=%d", a, b)
	}
}

func TestFanoutPublishesToAllBuses(t *testing.T) {
	first := NewLocal()
	second := NewLocal()
	bus := NewFanout(first, second)

	got1, got2 := 0, 0
	defer first.Subscribe(func(Event) { got1++ })()
	defer second.Subscribe(func(Event) { got2++ })()

	if err := bus.Publish(context.Background(), Event{Key: "courseSessions"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if got1 != 1 || got2 != 1 {
		t.Errorf("fanout missed a bus: got1=%d got2=%d", got1, got2)
	}
}

func TestFanoutSubscribeSpansBuses(t *testing.T) {
	first := NewLocal()
	second := NewLocal()
	bus := NewFanout(first, second)

	count := 0
	cancel := bus.Subscribe(func(Event) { count++ })
	defer cancel()

	_ = first.Publish(context.Background(), Event{Key: "k"})
	_ = second.Publish(context.Background(), Event{Key: "k"})
	if count != 2 {
		t.Errorf("expected events from both buses, got %d", count)
	}
}
