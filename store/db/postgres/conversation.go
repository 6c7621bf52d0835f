package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
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
	// embedding_vector is left NULL until the backfill pool fills it.
	stmt := `INSERT INTO conversations (timestamp, session_id, participant, message, metadata, created_at)
		VALUES (` + placeholders(6) + `)
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
		create.Timestamp,
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
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
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
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	return d.queryConversations(ctx, query, args...)
}

// SearchConversations matches message text first and metadata values second;
// both feed a single recency ordering.
func (d *DB) SearchConversations(ctx context.Context, query string, limit int) ([]*store.Conversation, error) {
	stmt := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE strpos(lower(message), lower(` + placeholder(1) + `)) > 0
			OR strpos(lower(participant), lower(` + placeholder(1) + `)) > 0
			OR EXISTS (
				SELECT 1 FROM jsonb_each_text(COALESCE(metadata, '{}'::jsonb)) AS m(key, value)
				WHERE strpos(lower(m.value), lower(` + placeholder(1) + `)) > 0
			)
		ORDER BY timestamp DESC, id DESC
		LIMIT ` + placeholder(2)
	return d.queryConversations(ctx, stmt, query, limit)
}

func (d *DB) queryConversations(ctx context.Context, query string, args ...any) ([]*store.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := []*store.Conversation{}
	for rows.Next() {
		var (
			conversation store.Conversation
			sessionID    sql.NullString
			vector       sql.Null[pgvector.Vector]
			metadata     []byte
		)
		if err := rows.Scan(
			&conversation.ID,
			&conversation.Timestamp,
			&sessionID,
			&conversation.Participant,
			&conversation.Message,
			&vector,
			&metadata,
			&conversation.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}

		conversation.Timestamp = conversation.Timestamp.UTC()
		if sessionID.Valid {
			conversation.SessionID = &sessionID.String
		}
		if vector.Valid {
			conversation.Embedding = vector.V.Slice()
		}
		if conversation.Metadata, err = store.DecodeMetadata(metadata); err != nil {
			return nil, err
		}
		list = append(list, &conversation)
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

	// Lock the row so two workers cannot both see it as pending.
	var present bool
	err = tx.QueryRowContext(ctx, `SELECT embedding_vector IS NOT NULL FROM conversations WHERE id = `+placeholder(1)+` FOR UPDATE`, fill.ID).Scan(&present)
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

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET embedding_vector = `+placeholder(1)+` WHERE id = `+placeholder(2)+` AND embedding_vector IS NULL`,
		pgvector.NewVector(fill.Embedding), fill.ID); err != nil {
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
