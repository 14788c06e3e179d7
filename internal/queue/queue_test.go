package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume init failed: %v", err)
	}

	sub := Submission{
		CourseCode:  "HCI",
		PIN:         "123456",
		StudentName: "Thandi M",
		StudentID:   "ST1",
		SubmittedAt: time.Now().UTC(),
	}
	if err := q.Publish(ctx, sub); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-out:
		if got != sub {
			t.Errorf("got %+v, want %+v", got, sub)
		}
	case <-time.After(time.Second):
		t.Fatal("submission never delivered")
	}
}

func TestInMemoryPublishCancelled(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	// Fill the buffer, then cancel: the next publish must not block.
	if err := q.Publish(ctx, Submission{StudentID: "ST1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	cancel()
	if err := q.Publish(ctx, Submission{StudentID: "ST2"}); err == nil {
		t.Error("expected context error on full queue after cancel")
	}
}
