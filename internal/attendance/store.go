// Package attendance records student submissions against sessions.
package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"edutend/internal/store"
)

// Record is one student's submission. Records are append-only: never
// mutated or deleted once written.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	StudentName string    `json:"studentName"`
	StudentID   string    `json:"studentId"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
}

// StatusPresent is the status stamped on accepted submissions.
const StatusPresent = "present"

// Store keeps the courseAttendanceRecords collection in the KV substrate.
type Store struct {
	kv store.KV
	mu sync.Mutex
}

// NewStore creates an attendance store over kv.
func NewStore(kv store.KV) *Store {
	return &Store{kv: kv}
}

// List returns every record. Missing or corrupt data degrades to empty.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	raw, err := s.kv.Get(ctx, store.KeyAttendanceRecords)
	if err != nil {
		return nil, fmt.Errorf("load attendance records: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		log.Printf("attendance store: corrupt collection, treating as empty: %v", err)
		return nil, nil
	}
	return records, nil
}

// Append adds a record to the collection.
func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.List(ctx)
	if err != nil {
		return err
	}
	records = append(records, rec)
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal attendance records: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyAttendanceRecords, raw); err != nil {
		return fmt.Errorf("persist attendance records: %w", err)
	}
	return nil
}

// ListBySession returns the session's records in submission order.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range all {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// CountBySession returns the authoritative attendance count for a session.
func (s *Store) CountBySession(ctx context.Context, sessionID string) (int, error) {
	recs, err := s.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}
