package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/benbjohnson/clock"

	"edutend/internal/notify"
	"edutend/internal/store"
)

// Store owns the courseSessions collection: a most-recent-first sequence
// persisted as one value in the KV substrate. Every mutation reads the
// whole collection, rewrites it in memory, writes it back, and publishes
// one change event. The substrate has no compare-and-swap, so concurrent
// processes race and the last write wins; the process-local lock only
// keeps mutations within this process strictly ordered.
type Store struct {
	kv  store.KV
	bus notify.Bus
	clk clock.Clock
	mu  sync.Mutex
}

// NewStore creates a session store over kv, publishing changes on bus.
func NewStore(kv store.KV, bus notify.Bus, clk clock.Clock) *Store {
	return &Store{kv: kv, bus: bus, clk: clk}
}

// List returns all sessions, most recent first. A missing or corrupt
// collection degrades to empty rather than failing the view.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	raw, err := s.kv.Get(ctx, store.KeyCourseSessions)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var sessions []Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		log.Printf("session store: corrupt collection, treating as empty: %v", err)
		return nil, nil
	}
	return sessions, nil
}

// ListByCourse returns the course's sessions, most recent first.
func (s *Store) ListByCourse(ctx context.Context, courseCode string) ([]Session, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, sess := range all {
		if sess.CourseCode == courseCode {
			out = append(out, sess)
		}
	}
	return out, nil
}

// ListRecent returns up to n of the newest sessions across all courses.
func (s *Store) ListRecent(ctx context.Context, n int) ([]Session, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// FindActive returns the course's active session, or (nil, nil) when none.
func (s *Store) FindActive(ctx context.Context, courseCode string) (*Session, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].CourseCode == courseCode && all[i].Status == StatusActive {
			return &all[i], nil
		}
	}
	return nil, nil
}

// Get returns a session by ID, or (nil, nil) when unknown.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].SessionID == sessionID {
			return &all[i], nil
		}
	}
	return nil, nil
}

// Upsert replaces the session with the same ID, or prepends it when new.
func (s *Store) Upsert(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.List(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range all {
		if all[i].SessionID == sess.SessionID {
			all[i] = sess
			replaced = true
			break
		}
	}
	if !replaced {
		all = append([]Session{sess}, all...)
	}
	return s.save(ctx, all)
}

// CreateActive force-closes any active session for the new session's
// course, stamps their ClosedTime, prepends the new session, and persists
// the whole collection in one write with one broadcast.
func (s *Store) CreateActive(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.List(ctx)
	if err != nil {
		return err
	}
	now := s.clk.Now()
	for i := range all {
		if all[i].CourseCode == sess.CourseCode && all[i].Status == StatusActive {
			all[i].Status = StatusClosed
			closed := now
			all[i].ClosedTime = &closed
		}
	}
	all = append([]Session{sess}, all...)
	return s.save(ctx, all)
}

// CloseActive transitions the course's active session to closed and
// returns it, or (nil, nil) when the course has none.
func (s *Store) CloseActive(ctx context.Context, courseCode string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].CourseCode == courseCode && all[i].Status == StatusActive {
			all[i].Status = StatusClosed
			closed := s.clk.Now()
			all[i].ClosedTime = &closed
			if err := s.save(ctx, all); err != nil {
				return nil, err
			}
			sess := all[i]
			return &sess, nil
		}
	}
	return nil, nil
}

// CloseExpired transitions every active session whose expiry has passed
// and reports how many changed. Nothing changed means nothing written and
// nothing broadcast.
func (s *Store) CloseExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clk.Now()
	changed := 0
	for i := range all {
		if all[i].Status == StatusActive && all[i].ExpiryTime != nil && all[i].ExpiryTime.Before(now) {
			all[i].Status = StatusClosed
			closed := now
			all[i].ClosedTime = &closed
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	return changed, s.save(ctx, all)
}

func (s *Store) save(ctx context.Context, sessions []Session) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyCourseSessions, raw); err != nil {
		return fmt.Errorf("persist sessions: %w", err)
	}
	// Persisted state is authoritative; a lost broadcast is repaired by
	// the next sweep in the observing process.
	if err := s.bus.Publish(ctx, notify.Event{Key: store.KeyCourseSessions, Value: raw}); err != nil {
		log.Printf("session store: broadcast failed: %v", err)
	}
	return nil
}
