package session

import (
	"reflect"
	"testing"
	"time"
)

func TestNewSessionIDSortableByCreation(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	id1 := NewSessionID("HCI", t0)
	id2 := NewSessionID("HCI", t0.Add(time.Second))

	if id1 == id2 {
		t.Fatalf("expected distinct ids, got %s twice", id1)
	}
	if !(id1 < id2) {
		t.Errorf("expected %s < %s (sortable by creation time)", id1, id2)
	}
	if id1 != "SHCI"+"1741597200000" {
		t.Errorf("unexpected id format: %s", id1)
	}
}

func TestQRPayloadRoundTrip(t *testing.T) {
	expiry := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	sess := Session{
		SessionID:    "SHCI1741597200000",
		CourseCode:   "HCI",
		CourseName:   "Human Computer Interaction II",
		PIN:          "483920",
		CreatedTime:  time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		ExpiryTime:   &expiry,
		Status:       StatusActive,
		LecturerID:   "L001",
		LecturerName: "Dr. Lecturer",
		MaxDuration:  30,
	}

	payload, err := QRPayload(sess)
	if err != nil {
		t.Fatalf("QRPayload failed: %v", err)
	}
	decoded, err := ParsePayload(payload)
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if decoded.PIN != sess.PIN {
		t.Errorf("pin = %s, want %s", decoded.PIN, sess.PIN)
	}
	if decoded.Session == nil {
		t.Fatal("expected a full session from the JSON payload shape")
	}
	if !reflect.DeepEqual(*decoded.Session, sess) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", *decoded.Session, sess)
	}
}

func TestParsePayloadBarePIN(t *testing.T) {
	decoded, err := ParsePayload("123456")
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if decoded.PIN != "123456" {
		t.Errorf("pin = %s, want 123456", decoded.PIN)
	}
	if decoded.Session != nil {
		t.Error("bare pin payload should carry no session")
	}
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "12345", "1234567", "12345a", "{\"courseCode\":\"HCI\"}", "{not json"} {
		if _, err := ParsePayload(raw); err == nil {
			t.Errorf("ParsePayload(%q) should fail", raw)
		}
	}
}

func TestSessionActive(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		sess Session
		want bool
	}{
		{"active no expiry", Session{Status: StatusActive}, true},
		{"active future expiry", Session{Status: StatusActive, ExpiryTime: &future}, true},
		{"active past expiry", Session{Status: StatusActive, ExpiryTime: &past}, false},
		{"closed", Session{Status: StatusClosed}, false},
	}
	for _, tt := range tests {
		if got := tt.sess.Active(now); got != tt.want {
			t.Errorf("%s: Active = %v, want %v", tt.name, got, tt.want)
		}
	}
}
