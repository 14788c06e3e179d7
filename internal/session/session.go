// Package session owns the attendance-session collection and its
// lifecycle: creation with a fresh PIN, timed expiry, explicit closure,
// and the periodic sweep that keeps every view honest.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Session statuses. A session is created active and only ever transitions
// to closed; history is retained for listing, never deleted.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Session is one timed attendance window for one course.
type Session struct {
	SessionID    string     `json:"sessionId"`
	CourseCode   string     `json:"courseCode"`
	CourseName   string     `json:"courseName"`
	PIN          string     `json:"pin"`
	CreatedTime  time.Time  `json:"createdTime"`
	ExpiryTime   *time.Time `json:"expiryTime"` // nil until a timer is set
	ClosedTime   *time.Time `json:"closedTime,omitempty"`
	Status       string     `json:"status"`
	LecturerID   string     `json:"lecturerId"`
	LecturerName string     `json:"lecturerName"`
	// AttendanceCount is a cached display value; the authoritative count
	// is the number of attendance records referencing this session.
	AttendanceCount int    `json:"attendanceCount"`
	MaxDuration     int    `json:"maxDuration,omitempty"`
	Location        string `json:"location,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Active reports whether the session still accepts submissions at t.
func (s Session) Active(t time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	return s.ExpiryTime == nil || s.ExpiryTime.After(t)
}

// NewSessionID builds an identifier that is unique per course and sortable
// by creation time: "S" + course code + unix milliseconds.
func NewSessionID(courseCode string, t time.Time) string {
	return fmt.Sprintf("S%s%d", courseCode, t.UnixMilli())
}

// QRPayload returns the text content of the session's QR symbol: the
// JSON-serialized session.
func QRPayload(s Session) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	return string(raw), nil
}

// Payload is a decoded QR scan. Scanners produced two shapes over time:
// the JSON-serialized session and the bare PIN string; both are accepted.
type Payload struct {
	PIN     string
	Session *Session
}

// ParsePayload decodes either payload shape. The payload is versionless
// and schema-free, so anything that is neither valid session JSON nor a
// 6-digit PIN is rejected.
func ParsePayload(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, fmt.Errorf("empty qr payload")
	}
	if strings.HasPrefix(raw, "{") {
		var s Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return Payload{}, fmt.Errorf("parse qr payload: %w", err)
		}
		if s.PIN == "" {
			return Payload{}, fmt.Errorf("qr payload has no pin")
		}
		return Payload{PIN: s.PIN, Session: &s}, nil
	}
	if len(raw) != 6 || strings.IndexFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return Payload{}, fmt.Errorf("qr payload is not a 6-digit pin")
	}
	return Payload{PIN: raw}, nil
}
