package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/tracking"
)

// Sessions manages the lifecycle of attendance sessions. Completing a
// session also closes its tracking cache and drops the recorder memo.
type Sessions struct {
	repo     database.SessionWriter
	tracker  *tracking.Registry
	recorder *Recorder
	present  int
	late     int
	now      func() time.Time
}

// NewSessions creates the session service. present and late are the window
// lengths used when a caller does not give its own. tracker and recorder
// may be nil.
func NewSessions(repo database.SessionWriter, tracker *tracking.Registry, recorder *Recorder, present, late int) *Sessions {
	return &Sessions{
		repo:     repo,
		tracker:  tracker,
		recorder: recorder,
		present:  present,
		late:     late,
		now:      time.Now,
	}
}

func (s *Sessions) windows(present, late int) (int, int, error) {
	if present == 0 {
		present = s.present
	}
	if late == 0 {
		late = s.late
	}
	if err := config.ValidateWindows(present, late); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidWindows, err)
	}
	return present, late, nil
}

// Start creates a session that is active from now on. Zero window lengths
// take the configured defaults.
func (s *Sessions) Start(ctx context.Context, classID string, present, late int) (*database.Session, error) {
	present, late, err := s.windows(present, late)
	if err != nil {
		return nil, err
	}
	now := s.now()
	session := &database.Session{
		ClassID:              classID,
		SessionDate:          time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		StartTime:            now,
		Status:               database.SessionActive,
		PresentWindowMinutes: present,
		LateWindowMinutes:    late,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	log.Printf("Started session %d for class %s (present %dm, late %dm)", session.ID, classID, present, late)
	return session, nil
}

// Schedule creates a session for a later start. It records nothing until
// activated.
func (s *Sessions) Schedule(ctx context.Context, classID string, startAt time.Time, present, late int) (*database.Session, error) {
	present, late, err := s.windows(present, late)
	if err != nil {
		return nil, err
	}
	session := &database.Session{
		ClassID:              classID,
		SessionDate:          time.Date(startAt.Year(), startAt.Month(), startAt.Day(), 0, 0, 0, 0, startAt.Location()),
		StartTime:            startAt,
		Status:               database.SessionScheduled,
		PresentWindowMinutes: present,
		LateWindowMinutes:    late,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return session, nil
}

// Activate starts a scheduled session now. Activating an active session is a no-op.
func (s *Sessions) Activate(ctx context.Context, id int64) (*database.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case database.SessionActive:
		return session, nil
	case database.SessionCompleted:
		return nil, ErrSessionCompleted
	}

	now := s.now()
	if err := s.repo.ActivateSession(ctx, id, now); err != nil {
		return nil, fmt.Errorf("activating session %d: %w", id, err)
	}
	session.Status = database.SessionActive
	session.StartTime = now
	return session, nil
}

// Stop completes a session. A completed session is never reopened, so
// stopping it again fails with ErrSessionCompleted.
func (s *Sessions) Stop(ctx context.Context, id int64) (*database.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == database.SessionCompleted {
		return nil, ErrSessionCompleted
	}

	now := s.now()
	err = s.repo.CompleteSession(ctx, id, now)
	if errors.Is(err, database.ErrNotFound) {
		// Completed concurrently.
		return nil, ErrSessionCompleted
	}
	if err != nil {
		return nil, fmt.Errorf("completing session %d: %w", id, err)
	}
	if s.tracker != nil {
		s.tracker.Close(id, now)
	}
	if s.recorder != nil {
		s.recorder.Forget(id)
	}

	session.Status = database.SessionCompleted
	session.EndTime = &now
	log.Printf("Completed session %d", id)
	return session, nil
}

// Get returns a session or database.ErrNotFound.
func (s *Sessions) Get(ctx context.Context, id int64) (*database.Session, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting session %d: %w", id, err)
	}
	if session == nil {
		return nil, database.ErrNotFound
	}
	return session, nil
}

// Active returns the session if it accepts attendance. Otherwise the error
// is database.ErrNotFound, ErrSessionNotActive or ErrSessionCompleted.
func (s *Sessions) Active(ctx context.Context, id int64) (*database.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case database.SessionActive:
		return session, nil
	case database.SessionCompleted:
		return session, ErrSessionCompleted
	default:
		return session, ErrSessionNotActive
	}
}

// List returns the most recent sessions.
func (s *Sessions) List(ctx context.Context, limit int) ([]database.Session, error) {
	sessions, err := s.repo.ListSessions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}
