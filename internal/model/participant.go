package model

import "time"

type ParticipantRole string

const (
	ParticipantRoleOwner  ParticipantRole = "owner"
	ParticipantRoleMember ParticipantRole = "member"
)

// Participant links a user to a conversation. The (conversation, user) pair
// is unique; LastReadAt is the read watermark and only ever moves forward.
type Participant struct {
	ConversationID int64           `json:"conversation_id"`
	UserID         int64           `json:"user_id"`
	Role           ParticipantRole `json:"role"`
	JoinedAt       time.Time       `json:"joined_at"`
	LastReadAt     *time.Time      `json:"last_read_at,omitempty"`

	User *User `json:"user,omitempty"`
}
