package model

import "time"

type ConversationType string

const (
	ConversationTypeDM    ConversationType = "dm"
	ConversationTypeGroup ConversationType = "group"
	ConversationTypeTeam  ConversationType = "team"
)

type Conversation struct {
	ID           int64            `json:"id"`
	Type         ConversationType `json:"type"`
	Title        *string          `json:"title,omitempty"`
	CreatedByID  int64            `json:"created_by_id"`
	ClientID     *int64           `json:"client_id,omitempty"`
	TeamID       *int64           `json:"team_id,omitempty"`
	AssignmentID *int64           `json:"assignment_id,omitempty"`
	TaskID       *int64           `json:"task_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`

	Participants []Participant `json:"participants,omitempty"`
}

// ConversationSummary is a conversation as it appears in a user's inbox:
// the row itself plus the most recent message and that user's unread count.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	LastMessage  *Message     `json:"last_message,omitempty"`
	UnreadCount  int64        `json:"unread_count"`
}
