package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"opsdeck.app/chat/core/db"
	"opsdeck.app/chat/internal/model"
)

type conversationStore struct {
	q db.Querier
}

func newConversationStore(q db.Querier) ConversationStore {
	return &conversationStore{q: q}
}

const conversationColumns = "id, type, title, created_by_id, client_id, team_id, assignment_id, task_id, created_at"

// Insert persists a conversation row. dmKey is the deterministic sorted-pair
// key for dm conversations (nil otherwise); a partial unique index on it is
// what turns concurrent find-or-create races into ErrDuplicate.
func (s *conversationStore) Insert(ctx context.Context, conv *model.Conversation, dmKey *string) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO conversations (id, type, title, created_by_id, client_id, team_id, assignment_id, task_id, dm_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		conv.ID, conv.Type, conv.Title, conv.CreatedByID,
		conv.ClientID, conv.TeamID, conv.AssignmentID, conv.TaskID, dmKey).
		Scan(&conv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *conversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	row := s.q.QueryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = $1", id)
	return scanConversation(row)
}

func (s *conversationStore) GetDMByKey(ctx context.Context, dmKey string) (*model.Conversation, error) {
	row := s.q.QueryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE type = 'dm' AND dm_key = $1", dmKey)
	return scanConversation(row)
}

func (s *conversationStore) GetByTeamID(ctx context.Context, teamID int64) (*model.Conversation, error) {
	row := s.q.QueryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE type = 'team' AND team_id = $1", teamID)
	return scanConversation(row)
}

// ListForUser returns the conversations the user participates in, newest
// activity first, each with its latest message and the user's unread count.
// cursor is the activity timestamp of the last row of the previous page.
func (s *conversationStore) ListForUser(ctx context.Context, userID int64, cursor *time.Time, take int32) ([]model.ConversationSummary, error) {
	rows, err := s.q.Query(ctx, `
		SELECT c.id, c.type, c.title, c.created_by_id, c.client_id, c.team_id, c.assignment_id, c.task_id, c.created_at,
		       m.id, m.sender_id, m.type, m.content, m.attachments, m.created_at,
		       (SELECT count(*) FROM messages um
		         WHERE um.conversation_id = c.id
		           AND um.sender_id <> p.user_id
		           AND um.deleted_at IS NULL
		           AND um.created_at > COALESCE(p.last_read_at, 'epoch'::timestamptz)) AS unread_count,
		       COALESCE(m.created_at, c.created_at) AS activity_at
		FROM participants p
		JOIN conversations c ON c.id = p.conversation_id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, type, content, attachments, created_at
			FROM messages
			WHERE conversation_id = c.id AND deleted_at IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) m ON true
		WHERE p.user_id = $1
		  AND ($2::timestamptz IS NULL OR COALESCE(m.created_at, c.created_at) < $2)
		ORDER BY activity_at DESC
		LIMIT $3`,
		userID, cursor, take)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []model.ConversationSummary{}
	for rows.Next() {
		var (
			sum        model.ConversationSummary
			msgID      *int64
			senderID   *int64
			msgType    *model.MessageType
			content    *string
			atts       *model.Attachments
			msgCreated *time.Time
			activityAt time.Time
		)
		c := &sum.Conversation
		err := rows.Scan(&c.ID, &c.Type, &c.Title, &c.CreatedByID, &c.ClientID,
			&c.TeamID, &c.AssignmentID, &c.TaskID, &c.CreatedAt,
			&msgID, &senderID, &msgType, &content, &atts, &msgCreated,
			&sum.UnreadCount, &activityAt)
		if err != nil {
			return nil, err
		}
		if msgID != nil {
			msg := model.Message{
				ID:             *msgID,
				ConversationID: c.ID,
				SenderID:       *senderID,
				Type:           *msgType,
				Content:        *content,
				CreatedAt:      *msgCreated,
			}
			if atts != nil {
				msg.Attachments = *atts
			}
			sum.LastMessage = &msg
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *conversationStore) AddParticipants(ctx context.Context, conversationID int64, participants []model.Participant) error {
	if len(participants) == 0 {
		return nil
	}

	for _, p := range participants {
		_, err := s.q.Exec(ctx, `
			INSERT INTO participants (conversation_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			conversationID, p.UserID, p.Role, p.JoinedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *conversationStore) ListParticipants(ctx context.Context, conversationID int64) ([]model.Participant, error) {
	rows, err := s.q.Query(ctx, `
		SELECT p.conversation_id, p.user_id, p.role, p.joined_at, p.last_read_at,
		       `+prefixedUserColumns("u")+`
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1
		ORDER BY p.joined_at, p.user_id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []model.Participant{}
	for rows.Next() {
		var (
			p model.Participant
			u model.User
		)
		err := rows.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &p.LastReadAt,
			&u.ID, &u.Name, &u.Email, &u.Role, &u.ClientID, &u.LastSeenAt,
			&u.Active, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, err
		}
		p.User = &u
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *conversationStore) GetParticipant(ctx context.Context, conversationID, userID int64) (*model.Participant, error) {
	var p model.Participant
	err := s.q.QueryRow(ctx, `
		SELECT conversation_id, user_id, role, joined_at, last_read_at
		FROM participants
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID).
		Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &p.LastReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *conversationStore) RemoveParticipant(ctx context.Context, conversationID, userID int64) error {
	tag, err := s.q.Exec(ctx,
		"DELETE FROM participants WHERE conversation_id = $1 AND user_id = $2",
		conversationID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead advances the read watermark. GREATEST keeps it monotonic under
// concurrent calls; a stale writer can never regress it.
func (s *conversationStore) MarkRead(ctx context.Context, conversationID, userID int64, readAt time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE participants
		SET last_read_at = GREATEST(COALESCE(last_read_at, 'epoch'::timestamptz), $3)
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID, readAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(&c.ID, &c.Type, &c.Title, &c.CreatedByID, &c.ClientID,
		&c.TeamID, &c.AssignmentID, &c.TaskID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func prefixedUserColumns(alias string) string {
	return alias + ".id, " + alias + ".name, " + alias + ".email, " + alias + ".role, " +
		alias + ".client_id, " + alias + ".last_seen_at, " + alias + ".active, " +
		alias + ".created_at, " + alias + ".updated_at"
}
