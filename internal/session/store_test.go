package session

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"edutend/internal/notify"
	"edutend/internal/store"
)

func newTestStore(t *testing.T) (*Store, *store.Memory, *clock.Mock, *notify.Local) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	kv := store.NewMemory()
	bus := notify.NewLocal()
	return NewStore(kv, bus, mock), kv, mock, bus
}

func activeSession(code string, created time.Time) Session {
	return Session{
		SessionID:   NewSessionID(code, created),
		CourseCode:  code,
		CourseName:  code + " course",
		PIN:         "111111",
		CreatedTime: created,
		Status:      StatusActive,
	}
}

func TestCreateActiveForceClosesPrior(t *testing.T) {
	st, _, mock, _ := newTestStore(t)
	ctx := context.Background()

	first := activeSession("HCI", mock.Now())
	if err := st.CreateActive(ctx, first); err != nil {
		t.Fatalf("CreateActive failed: %v", err)
	}
	mock.Add(time.Minute)
	second := activeSession("HCI", mock.Now())
	if err := st.CreateActive(ctx, second); err != nil {
		t.Fatalf("CreateActive failed: %v", err)
	}

	all, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
	if all[0].SessionID != second.SessionID {
		t.Errorf("expected most-recent-first ordering, got %s first", all[0].SessionID)
	}
	if all[0].Status != StatusActive {
		t.Errorf("newest session should be active, got %s", all[0].Status)
	}
	if all[1].Status != StatusClosed {
		t.Errorf("prior session should be force-closed, got %s", all[1].Status)
	}
	if all[1].ClosedTime == nil {
		t.Fatal("force-closed session missing ClosedTime")
	}
	if all[1].ClosedTime.Before(all[1].CreatedTime) {
		t.Errorf("ClosedTime %v earlier than CreatedTime %v", all[1].ClosedTime, all[1].CreatedTime)
	}

	active, err := st.FindActive(ctx, "HCI")
	if err != nil {
		t.Fatalf("FindActive failed: %v", err)
	}
	if active == nil || active.SessionID != second.SessionID {
		t.Errorf("FindActive should return the second session")
	}
}

func TestAtMostOneActivePerCourse(t *testing.T) {
	st, _, mock, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := st.CreateActive(ctx, activeSession("HCI", mock.Now())); err != nil {
			t.Fatalf("CreateActive failed: %v", err)
		}
		if err := st.CreateActive(ctx, activeSession("TEP", mock.Now())); err != nil {
			t.Fatalf("CreateActive failed: %v", err)
		}
		mock.Add(time.Second)
	}

	all, _ := st.List(ctx)
	perCourse := map[string]int{}
	for _, s := range all {
		if s.Status == StatusActive {
			perCourse[s.CourseCode]++
		}
	}
	for code, n := range perCourse {
		if n > 1 {
			t.Errorf("course %s has %d active sessions", code, n)
		}
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	st, _, mock, _ := newTestStore(t)
	ctx := context.Background()

	sess := activeSession("HCI", mock.Now())
	if err := st.Upsert(ctx, sess); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	expiry := mock.Now().Add(5 * time.Minute)
	sess.ExpiryTime = &expiry
	if err := st.Upsert(ctx, sess); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	all, _ := st.List(ctx)
	if len(all) != 1 {
		t.Fatalf("expected 1 session after replace, got %d", len(all))
	}
	if all[0].ExpiryTime == nil || !all[0].ExpiryTime.Equal(expiry) {
		t.Errorf("expiry not persisted: %v", all[0].ExpiryTime)
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	st, _, mock, _ := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, code := range []string{"HCI", "TEP", "DES"} {
		sess := activeSession(code, mock.Now())
		ids = append(ids, sess.SessionID)
		if err := st.CreateActive(ctx, sess); err != nil {
			t.Fatalf("CreateActive failed: %v", err)
		}
		mock.Add(time.Minute)
	}

	recent, err := st.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(recent))
	}
	if recent[0].SessionID != ids[2] || recent[1].SessionID != ids[1] {
		t.Errorf("wrong order: got %s, %s", recent[0].SessionID, recent[1].SessionID)
	}
}

func TestCorruptCollectionDegradesToEmpty(t *testing.T) {
	st, kv, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := kv.Set(ctx, store.KeyCourseSessions, []byte("{not valid json")); err != nil {
		t.Fatalf("seed corrupt data: %v", err)
	}
	all, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List should degrade, not fail: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty collection, got %d", len(all))
	}

	// The store must recover by accepting new writes.
	if err := st.CreateActive(ctx, activeSession("HCI", time.Now())); err != nil {
		t.Fatalf("CreateActive after corruption failed: %v", err)
	}
}

func TestCloseExpired(t *testing.T) {
	st, _, mock, bus := newTestStore(t)
	ctx := context.Background()

	expired := activeSession("HCI", mock.Now())
	past := mock.Now().Add(time.Minute)
	expired.ExpiryTime = &past
	fresh := activeSession("TEP", mock.Now())
	future := mock.Now().Add(time.Hour)
	fresh.ExpiryTime = &future
	untimed := activeSession("DES", mock.Now())

	for _, s := range []Session{expired, fresh, untimed} {
		if err := st.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	mock.Add(2 * time.Minute)

	events := 0
	cancel := bus.Subscribe(func(evt notify.Event) {
		if evt.Key == store.KeyCourseSessions {
			events++
		}
	})
	defer cancel()

	n, err := st.CloseExpired(ctx)
	if err != nil {
		t.Fatalf("CloseExpired failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 closed session, got %d", n)
	}
	if events != 1 {
		t.Errorf("expected a single broadcast, got %d", events)
	}

	got, _ := st.Get(ctx, expired.SessionID)
	if got == nil || got.Status != StatusClosed || got.ClosedTime == nil {
		t.Errorf("expired session not closed: %+v", got)
	}
	if act, _ := st.FindActive(ctx, "TEP"); act == nil {
		t.Error("unexpired session should stay active")
	}
	if act, _ := st.FindActive(ctx, "DES"); act == nil {
		t.Error("session without expiry should stay active")
	}

	// Second sweep is a no-op: nothing written, nothing broadcast.
	n, err = st.CloseExpired(ctx)
	if err != nil {
		t.Fatalf("CloseExpired failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep should close nothing, closed %d", n)
	}
	if events != 1 {
		t.Errorf("no-op sweep should not broadcast, got %d events", events)
	}
}

func TestFindActiveScopedByCourse(t *testing.T) {
	st, _, mock, _ := newTestStore(t)
	ctx := context.Background()

	hci := activeSession("HCI", mock.Now())
	hci.PIN = "222222"
	tep := activeSession("TEP", mock.Now())
	tep.PIN = "222222" // same PIN on a different course
	for _, s := range []Session{hci, tep} {
		if err := st.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	got, err := st.FindActive(ctx, "TEP")
	if err != nil {
		t.Fatalf("FindActive failed: %v", err)
	}
	if got == nil || got.SessionID != tep.SessionID {
		t.Errorf("FindActive(TEP) = %+v, want the TEP session", got)
	}
}
