package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/leodock/store"
)

const sessionColumns = `session_id, kind, participants, topic, start_time, end_time, status`

func (d *DB) CreateSession(ctx context.Context, create *store.CreateSession) (*store.Session, error) {
	participants, err := store.EncodeParticipants(create.Participants)
	if err != nil {
		return nil, err
	}

	stmt := `INSERT INTO sessions (session_id, kind, participants, topic, start_time, status)
		VALUES (` + placeholders(6) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.Kind,
		string(participants),
		create.Topic,
		create.StartTime,
		string(store.SessionStatusActive),
	); err != nil {
		return nil, errors.Wrap(err, "failed to insert session")
	}

	return &store.Session{
		ID:           create.ID,
		Kind:         create.Kind,
		Participants: create.Participants,
		Topic:        create.Topic,
		StartTime:    create.StartTime,
		Status:       store.SessionStatusActive,
	}, nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*find.Status))
	}

	rows, err := d.db.QueryContext(ctx, `SELECT `+sessionColumns+`
		FROM sessions
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY start_time ASC, session_id ASC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	list := []*store.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) CloseSession(ctx context.Context, id string, endTime time.Time) (*store.Session, error) {
	// A single statement either closes the active row or leaves a closed one
	// untouched; the follow-up read reports the terminal state either way.
	if _, err := d.db.ExecContext(ctx, `UPDATE sessions SET status = `+placeholder(1)+`, end_time = `+placeholder(2)+`
		WHERE session_id = `+placeholder(3)+` AND status = `+placeholder(4),
		string(store.SessionStatusClosed), endTime, id, string(store.SessionStatusActive)); err != nil {
		return nil, errors.Wrap(err, "failed to close session")
	}

	session, err := scanSession(d.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = `+placeholder(1), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrSessionNotFound, "id %q", id)
	}
	return session, err
}

func (d *DB) GetSessionStats(ctx context.Context) (*store.SessionStats, error) {
	stats := &store.SessionStats{}
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = `+placeholder(1)+`) FROM sessions`,
		string(store.SessionStatusActive)).Scan(&stats.Total, &stats.Active)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count sessions")
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*store.Session, error) {
	var (
		session      store.Session
		participants []byte
		endTime      sql.NullTime
		status       string
	)
	if err := row.Scan(
		&session.ID,
		&session.Kind,
		&participants,
		&session.Topic,
		&session.StartTime,
		&endTime,
		&status,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan session")
	}

	var err error
	if session.Participants, err = store.DecodeParticipants(participants); err != nil {
		return nil, err
	}
	session.StartTime = session.StartTime.UTC()
	if endTime.Valid {
		t := endTime.Time.UTC()
		session.EndTime = &t
	}
	session.Status = store.SessionStatus(status)
	return &session, nil
}
