package session

import "errors"

var (
	// ErrNoCourseSelected is returned by Create without a course code.
	ErrNoCourseSelected = errors.New("no course selected")
	// ErrNoActivePIN is returned by SetTimer when no session is live on
	// this controller ("generate a PIN first").
	ErrNoActivePIN = errors.New("generate a PIN first")
	// ErrNoActiveSession is returned by Close when the course has no
	// active session to close.
	ErrNoActiveSession = errors.New("no active session for course")
	// ErrInvalidMinutes is returned by SetTimer for a non-positive duration.
	ErrInvalidMinutes = errors.New("timer minutes must be positive")
)
