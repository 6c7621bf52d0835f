package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SessionStatus is the lifecycle state of a session. The only transition is
// active -> closed.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

type Session struct {
	StartTime    time.Time
	EndTime      *time.Time
	ID           string
	Kind         string
	Topic        string
	Status       SessionStatus
	Participants []string
}

type CreateSession struct {
	StartTime    time.Time // zero means now
	ID           string
	Kind         string
	Topic        string
	Participants []string
}

// Validate checks the request and normalizes participants into a set,
// keeping first-seen order.
func (c *CreateSession) Validate() error {
	if c.ID == "" {
		return errors.Wrap(ErrInvalidArgument, "session id is required")
	}
	seen := make(map[string]struct{}, len(c.Participants))
	participants := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		participants = append(participants, p)
	}
	c.Participants = participants
	return nil
}

type FindSession struct {
	ID     *string
	Status *SessionStatus
}

type SessionStats struct {
	Total  int64
	Active int64
}

// CreateSession persists a new active session.
func (s *Store) CreateSession(ctx context.Context, create *CreateSession) (*Session, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	if create.StartTime.IsZero() {
		create.StartTime = time.Now()
	}
	create.StartTime = create.StartTime.UTC().Truncate(time.Microsecond)

	session, err := s.driver.CreateSession(ctx, create)
	if err != nil {
		return nil, NewStorageWriteError("create session", err)
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	list, err := s.driver.ListSessions(ctx, &FindSession{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrSessionNotFound, "id %q", id)
	}
	return list[0], nil
}

func (s *Store) ListSessions(ctx context.Context, find *FindSession) ([]*Session, error) {
	return s.driver.ListSessions(ctx, find)
}

// CloseSession moves a session to closed and stamps its end time. Closing an
// already closed session returns it unchanged.
func (s *Store) CloseSession(ctx context.Context, id string) (*Session, error) {
	endTime := time.Now().UTC().Truncate(time.Microsecond)
	session, err := s.driver.CloseSession(ctx, id, endTime)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, NewStorageWriteError("close session", err)
	}
	return session, nil
}

func (s *Store) GetSessionStats(ctx context.Context) (*SessionStats, error) {
	return s.driver.GetSessionStats(ctx)
}
