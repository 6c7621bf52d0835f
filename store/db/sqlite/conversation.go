package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/leodock/store"
)

const conversationColumns = `id, timestamp, session_id, participant, message, embedding_vector, metadata, created_at`

func (d *DB) CreateConversation(ctx context.Context, create *store.CreateConversation) (*store.Conversation, error) {
	metadata, err := store.EncodeMetadata(create.Metadata)
	if err != nil {
		return nil, err
	}
	var metadataValue any
	if metadata != nil {
		metadataValue = string(metadata)
	}

	createdTs := time.Now().Unix()
	stmt := `INSERT INTO conversations (timestamp, session_id, participant, message, embedding_vector, metadata, created_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?)
		RETURNING id`

	conversation := &store.Conversation{
		Timestamp:   create.Timestamp,
		SessionID:   create.SessionID,
		Participant: create.Participant,
		Message:     create.Message,
		Metadata:    create.Metadata,
		CreatedTs:   createdTs,
	}
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Timestamp.UnixMicro(),
		create.SessionID,
		create.Participant,
		create.Message,
		metadataValue,
		createdTs,
	).Scan(&conversation.ID); err != nil {
		return nil, errors.Wrap(err, "failed to insert conversation")
	}

	return conversation, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.HasEmbedding != nil {
		if *find.HasEmbedding {
			where = append(where, "embedding_vector IS NOT NULL")
		} else {
			where = append(where, "embedding_vector IS NULL")
		}
	}

	order := "DESC"
	if find.Ascending {
		order = "ASC"
	}
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY timestamp ` + order + `, id ` + order
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := []*store.Conversation{}
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// SearchConversations walks the log newest first and keeps keyword matches.
// Matching happens in Go because SQLite's LIKE and lower() only fold ASCII.
func (d *DB) SearchConversations(ctx context.Context, query string, limit int) ([]*store.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+conversationColumns+`
		FROM conversations
		ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search conversations")
	}
	defer rows.Close()

	list := []*store.Conversation{}
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		if !store.MatchKeyword(conversation, query) {
			continue
		}
		list = append(list, conversation)
		if len(list) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) FillConversationEmbedding(ctx context.Context, fill *store.FillConversationEmbedding) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var present bool
	err = tx.QueryRowContext(ctx, `SELECT embedding_vector IS NOT NULL FROM conversations WHERE id = ?`, fill.ID).Scan(&present)
	if errors.Is(err, sql.ErrNoRows) {
		return false, errors.Wrapf(store.ErrConversationNotFound, "id %d", fill.ID)
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to read conversation")
	}
	if present {
		return false, nil
	}

	if _, err := establishDimension(ctx, tx, len(fill.Embedding)); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET embedding_vector = ? WHERE id = ? AND embedding_vector IS NULL`,
		float32ArrayToBLOB(fill.Embedding), fill.ID); err != nil {
		return false, errors.Wrap(err, "failed to update conversation embedding")
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit conversation embedding")
	}
	return true, nil
}

func (d *DB) GetConversationStats(ctx context.Context) (*store.ConversationStats, error) {
	stats := &store.ConversationStats{}
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(embedding_vector), COUNT(DISTINCT participant) FROM conversations`).
		Scan(&stats.Total, &stats.WithEmbedding, &stats.UniqueParticipants)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count conversations")
	}
	stats.WithoutEmbedding = stats.Total - stats.WithEmbedding

	err = d.db.QueryRowContext(ctx, `SELECT participant, COUNT(*) AS message_count
		FROM conversations
		GROUP BY participant
		ORDER BY message_count DESC, participant ASC
		LIMIT 1`).Scan(&stats.MostActiveParticipant, &stats.MostActiveCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "failed to find most active participant")
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var (
		conversation store.Conversation
		timestamp    int64
		sessionID    sql.NullString
		vectorBLOB   []byte
		metadata     sql.NullString
	)
	if err := row.Scan(
		&conversation.ID,
		&timestamp,
		&sessionID,
		&conversation.Participant,
		&conversation.Message,
		&vectorBLOB,
		&metadata,
		&conversation.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan conversation")
	}

	conversation.Timestamp = time.UnixMicro(timestamp).UTC()
	if sessionID.Valid {
		conversation.SessionID = &sessionID.String
	}

	embedding, err := blobToFloat32Array(vectorBLOB)
	if err != nil {
		// A corrupt vector is treated as absent so it never reaches ranking.
		slog.Warn("dropping malformed embedding", "conversation_id", conversation.ID, "error", err)
	} else {
		conversation.Embedding = embedding
	}

	if metadata.Valid {
		conversation.Metadata, err = store.DecodeMetadata([]byte(metadata.String))
		if err != nil {
			return nil, err
		}
	}
	return &conversation, nil
}
