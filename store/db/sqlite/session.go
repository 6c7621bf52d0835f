package sqlite

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

	stmt := `INSERT INTO sessions (session_id, kind, participants, topic, start_time, end_time, status)
		VALUES (?, ?, ?, ?, ?, NULL, ?)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.Kind,
		string(participants),
		create.Topic,
		create.StartTime.UnixMicro(),
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
		where, args = append(where, "session_id = ?"), append(args, *find.ID)
	}
	if find.Status != nil {
		where, args = append(where, "status = ?"), append(args, string(*find.Status))
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
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET status = ?, end_time = ? WHERE session_id = ? AND status = ?`,
		string(store.SessionStatusClosed), endTime.UnixMicro(), id, string(store.SessionStatusActive)); err != nil {
		return nil, errors.Wrap(err, "failed to close session")
	}

	session, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrSessionNotFound, "id %q", id)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit session close")
	}
	return session, nil
}

func (d *DB) GetSessionStats(ctx context.Context) (*store.SessionStats, error) {
	stats := &store.SessionStats{}
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM sessions`,
		string(store.SessionStatusActive)).Scan(&stats.Total, &stats.Active)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count sessions")
	}
	return stats, nil
}

func scanSession(row rowScanner) (*store.Session, error) {
	var (
		session      store.Session
		participants string
		startTime    int64
		endTime      sql.NullInt64
		status       string
	)
	if err := row.Scan(
		&session.ID,
		&session.Kind,
		&participants,
		&session.Topic,
		&startTime,
		&endTime,
		&status,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan session")
	}

	var err error
	session.Participants, err = store.DecodeParticipants([]byte(participants))
	if err != nil {
		return nil, err
	}
	session.StartTime = time.UnixMicro(startTime).UTC()
	if endTime.Valid {
		t := time.UnixMicro(endTime.Int64).UTC()
		session.EndTime = &t
	}
	session.Status = store.SessionStatus(status)
	return &session, nil
}
