package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"edutend/internal/pinqr"
	"edutend/internal/settings"
)

// Lecturer identifies the creator of a session (denormalized onto it).
type Lecturer struct {
	ID   string
	Name string
}

// Config wires a Controller's collaborators. Store is required; the rest
// default to production implementations.
type Config struct {
	Store    *Store
	Settings *settings.Store // optional; supplies the default timer
	Clock    clock.Clock     // defaults to the wall clock
	// GeneratePIN defaults to pinqr.GeneratePIN.
	GeneratePIN func() (string, error)
	// OnTick, when set, receives the remaining time once per second while
	// a timer runs. Display hook only; expiry does not depend on it.
	OnTick func(remaining time.Duration)
}

// Controller is the session lifecycle state machine. It drives at most one
// live session at a time (the one whose PIN is on display): creation
// force-closes the course's prior active session, SetTimer arms a
// one-second countdown, Expire and Close transition to closed, and Sweep
// reconciles every session against the clock regardless of which process
// armed its timer.
type Controller struct {
	store    *Store
	settings *settings.Store
	clk      clock.Clock
	genPIN   func() (string, error)
	onTick   func(time.Duration)

	mu            sync.Mutex
	currentID     string
	currentCourse string
	currentPIN    string
	timerStop     chan struct{}
}

// NewController builds a controller from cfg.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.GeneratePIN == nil {
		cfg.GeneratePIN = pinqr.GeneratePIN
	}
	return &Controller{
		store:    cfg.Store,
		settings: cfg.Settings,
		clk:      cfg.Clock,
		genPIN:   cfg.GeneratePIN,
		onTick:   cfg.OnTick,
	}
}

// Create opens a new attendance window for the course. Any prior active
// session for the course is force-closed in the same store write. Calling
// Create twice yields two sessions with only the second active. When the
// lecturer has a positive default timer preference, it is applied
// immediately, as if SetTimer had been called.
func (c *Controller) Create(ctx context.Context, courseCode, courseName string, lecturer Lecturer) (Session, error) {
	if courseCode == "" {
		return Session{}, ErrNoCourseSelected
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTimerLocked()

	pin, err := c.genPIN()
	if err != nil {
		return Session{}, err
	}
	now := c.clk.Now()
	sess := Session{
		SessionID:    NewSessionID(courseCode, now),
		CourseCode:   courseCode,
		CourseName:   courseName,
		PIN:          pin,
		CreatedTime:  now,
		Status:       StatusActive,
		LecturerID:   lecturer.ID,
		LecturerName: lecturer.Name,
	}
	if err := c.store.CreateActive(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	c.currentID = sess.SessionID
	c.currentCourse = courseCode
	c.currentPIN = pin
	sessionsCreated.Inc()

	if c.settings != nil {
		if m := c.settings.Lecturer(ctx).DefaultTimerMinutes; m > 0 {
			if err := c.setTimerLocked(ctx, m); err != nil {
				log.Printf("session: default timer not applied: %v", err)
			}
		}
	}
	return sess, nil
}

// SetTimer stamps the live session's expiry at now + minutes and starts a
// one-second countdown toward it. A running timer is cancelled first, so
// only one expiry event ever fires. Without a live PIN this is a reported
// error and no mutation.
func (c *Controller) SetTimer(ctx context.Context, minutes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentPIN == "" {
		return ErrNoActivePIN
	}
	return c.setTimerLocked(ctx, minutes)
}

func (c *Controller) setTimerLocked(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return ErrInvalidMinutes
	}
	sess, err := c.store.FindActive(ctx, c.currentCourse)
	if err != nil {
		return err
	}
	if sess == nil || sess.SessionID != c.currentID {
		return ErrNoActivePIN
	}
	expiry := c.clk.Now().Add(time.Duration(minutes) * time.Minute)
	sess.ExpiryTime = &expiry
	sess.MaxDuration = minutes
	if err := c.store.Upsert(ctx, *sess); err != nil {
		return fmt.Errorf("set timer: %w", err)
	}

	c.cancelTimerLocked()
	stop := make(chan struct{})
	c.timerStop = stop
	go c.countdown(expiry, stop)
	return nil
}

// countdown ticks once per second, reporting remaining time and expiring
// the session at zero. A cancelled countdown exits without expiring.
func (c *Controller) countdown(expiry time.Time, stop chan struct{}) {
	ticker := c.clk.Ticker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			remaining := expiry.Sub(now)
			if c.onTick != nil {
				c.onTick(remaining)
			}
			if remaining <= 0 {
				select {
				case <-stop:
					return
				default:
				}
				if err := c.Expire(context.Background()); err != nil {
					log.Printf("session: expiry failed: %v", err)
				}
				return
			}
		}
	}
}

// Expire closes the controller's live session, clears the displayed PIN,
// and cancels the countdown. Idempotent: with no live session it is a
// no-op, so a stale timer callback can never close the wrong session.
func (c *Controller) Expire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentID == "" {
		return nil
	}
	c.cancelTimerLocked()

	sess, err := c.store.FindActive(ctx, c.currentCourse)
	if err != nil {
		return err
	}
	if sess == nil || sess.SessionID != c.currentID {
		// Already transitioned elsewhere (another view, or the sweep).
		c.clearCurrentLocked()
		return nil
	}
	if _, err := c.store.CloseActive(ctx, c.currentCourse); err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	c.clearCurrentLocked()
	sessionsClosed.Inc()
	return nil
}

// Close is the explicit lecturer-initiated variant of Expire for a given
// course. Confirmation is the caller's responsibility.
func (c *Controller) Close(ctx context.Context, courseCode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	closed, err := c.store.CloseActive(ctx, courseCode)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if closed == nil {
		return ErrNoActiveSession
	}
	if closed.SessionID == c.currentID {
		c.cancelTimerLocked()
		c.clearCurrentLocked()
	}
	sessionsClosed.Inc()
	return nil
}

// Sweep closes every active session whose expiry has passed. It is the
// reconciliation path for processes that never armed the timer, and a
// no-op on sessions already closed.
func (c *Controller) Sweep(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.store.CloseExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	if n > 0 {
		sessionsSwept.Add(float64(n))
	}
	if c.currentID != "" {
		sess, err := c.store.Get(ctx, c.currentID)
		if err == nil && (sess == nil || sess.Status != StatusActive) {
			c.cancelTimerLocked()
			c.clearCurrentLocked()
		}
	}
	return n, nil
}

// RunSweeper drives Sweep on a fixed cadence until ctx is done.
func (c *Controller) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := c.clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				log.Printf("session: sweep failed: %v", err)
			}
		}
	}
}

// CurrentPIN returns the live session's PIN, or "" when none is live.
func (c *Controller) CurrentPIN() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPIN
}

// CurrentSessionID returns the live session's ID, or "" when none is live.
func (c *Controller) CurrentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

func (c *Controller) cancelTimerLocked() {
	if c.timerStop != nil {
		close(c.timerStop)
		c.timerStop = nil
	}
}

func (c *Controller) clearCurrentLocked() {
	c.currentID = ""
	c.currentCourse = ""
	c.currentPIN = ""
}
