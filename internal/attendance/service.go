package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"edutend/internal/session"
)

var (
	// ErrMissingFields is returned when name or student number is empty.
	ErrMissingFields = errors.New("name and student number required")
	// ErrNoActiveSession is returned when the course has no open window.
	ErrNoActiveSession = errors.New("no active session for course")
	// ErrWrongPIN is returned when the submitted PIN does not match the
	// course's active session.
	ErrWrongPIN = errors.New("pin does not match the active session")
	// ErrAlreadySubmitted is returned, with dedup enabled, on a repeat
	// submission by the same student within one session.
	ErrAlreadySubmitted = errors.New("attendance already submitted for this session")
)

// Service validates submissions against the course's active session and
// appends accepted records.
type Service struct {
	records  *Store
	sessions *session.Store
	clk      clock.Clock
	// dedup rejects repeat submissions per (session, student). Off by
	// default: the system historically allowed re-submission.
	dedup bool
}

// NewService creates a submission service.
func NewService(records *Store, sessions *session.Store, clk clock.Clock, dedup bool) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{records: records, sessions: sessions, clk: clk, dedup: dedup}
}

// Submit validates and records one attendance submission. Validation is
// always scoped by course: the PIN is compared against that course's
// active session only, so an equal PIN on another course never matches.
func (s *Service) Submit(ctx context.Context, courseCode, pin, studentName, studentID string) (Record, error) {
	studentName = strings.TrimSpace(studentName)
	studentID = strings.TrimSpace(studentID)
	if studentName == "" || studentID == "" {
		return Record{}, ErrMissingFields
	}

	active, err := s.sessions.FindActive(ctx, courseCode)
	if err != nil {
		return Record{}, fmt.Errorf("resolve active session: %w", err)
	}
	now := s.clk.Now()
	if active == nil || !active.Active(now) {
		return Record{}, ErrNoActiveSession
	}
	if pin != active.PIN {
		return Record{}, ErrWrongPIN
	}

	if s.dedup {
		existing, err := s.records.ListBySession(ctx, active.SessionID)
		if err != nil {
			return Record{}, err
		}
		for _, rec := range existing {
			if rec.StudentID == studentID {
				return Record{}, ErrAlreadySubmitted
			}
		}
	}

	rec := Record{
		ID:          uuid.NewString(),
		SessionID:   active.SessionID,
		StudentName: studentName,
		StudentID:   studentID,
		Timestamp:   now,
		Status:      StatusPresent,
	}
	if err := s.records.Append(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
