package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"opsdeck.app/chat/core/db"
	"opsdeck.app/chat/internal/model"
)

type messageStore struct {
	q db.Querier
}

func newMessageStore(q db.Querier) MessageStore {
	return &messageStore{q: q}
}

const messageColumns = "id, conversation_id, sender_id, type, content, attachments, created_at, deleted_at"

func (s *messageStore) Insert(ctx context.Context, msg *model.Message) error {
	return s.q.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, type, content, attachments)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Type, msg.Content, msg.Attachments).
		Scan(&msg.CreatedAt)
}

func (s *messageStore) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	row := s.q.QueryRow(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1", id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

// ListByConversation pages backwards from cursor (exclusive), newest first.
// Soft-deleted messages are skipped.
func (s *messageStore) ListByConversation(ctx context.Context, conversationID int64, cursor *time.Time, take int32) ([]model.Message, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		  AND deleted_at IS NULL
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`,
		conversationID, cursor, take)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// UnreadCount counts live messages from other senders past the participant's
// read watermark. A null watermark counts everything.
func (s *messageStore) UnreadCount(ctx context.Context, conversationID, userID int64) (int64, error) {
	var count int64
	err := s.q.QueryRow(ctx, `
		SELECT count(*)
		FROM messages m
		JOIN participants p ON p.conversation_id = m.conversation_id AND p.user_id = $2
		WHERE m.conversation_id = $1
		  AND m.sender_id <> $2
		  AND m.deleted_at IS NULL
		  AND m.created_at > COALESCE(p.last_read_at, 'epoch'::timestamptz)`,
		conversationID, userID).
		Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *messageStore) SoftDelete(ctx context.Context, id int64, deletedAt time.Time) error {
	tag, err := s.q.Exec(ctx,
		"UPDATE messages SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL",
		id, deletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Type,
		&m.Content, &m.Attachments, &m.CreatedAt, &m.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
