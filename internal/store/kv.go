package store

import "context"

// Well-known keys in the shared store. A change to KeyCourseSessions is the
// one signal other views rely on.
const (
	KeyUsers             = "users"
	KeyCourseSessions    = "courseSessions"
	KeyAttendanceRecords = "courseAttendanceRecords"
	KeyLecturerSettings  = "lecturerSettings"
	KeyTheme             = "theme"
)

// KV is the persistence substrate: a flat key-value store with no
// transaction primitive. Callers follow a read-full, mutate, write-full
// discipline; concurrent writers race and the last write wins.
type KV interface {
	// Get returns the stored value for key, or (nil, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set overwrites the value for key.
	Set(ctx context.Context, key string, value []byte) error
}
