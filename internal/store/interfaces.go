package store

import (
	"context"
	"errors"
	"time"

	"opsdeck.app/chat/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
// Find-or-create flows treat it as "someone else got there first" and retry
// as a lookup.
var ErrDuplicate = errors.New("duplicate")

// UserStore defines the contract for user data access
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]model.User, error)
	ListActive(ctx context.Context, opts ListUsersOptions) ([]model.User, error)
	TouchLastSeen(ctx context.Context, id int64, seenAt time.Time) error
}

// ListUsersOptions scopes ListActive. ExcludeRoles always applies; when
// Roles or ClientIDs is non-empty a user must match at least one of them.
// Search filters case-insensitively on name or email.
type ListUsersOptions struct {
	ExcludeID    int64
	ExcludeRoles []model.UserRole
	Roles        []model.UserRole
	ClientIDs    []int64
	Search       string
}

// ClientStore defines the contract for client data access
type ClientStore interface {
	GetByID(ctx context.Context, id int64) (*model.Client, error)
	ListIDsByAM(ctx context.Context, amID int64) ([]int64, error)
}

// TeamStore defines the contract for team and team-membership data access.
// Membership rows come from two external collections (client-team and
// template-team); this service only reads them.
type TeamStore interface {
	GetByID(ctx context.Context, id int64) (*model.Team, error)
	ListMemberIDs(ctx context.Context, teamID int64) ([]int64, error)
}

// ConversationStore defines the contract for conversation and participant
// data access
type ConversationStore interface {
	Insert(ctx context.Context, conv *model.Conversation, dmKey *string) error
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	GetDMByKey(ctx context.Context, dmKey string) (*model.Conversation, error)
	GetByTeamID(ctx context.Context, teamID int64) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID int64, cursor *time.Time, take int32) ([]model.ConversationSummary, error)

	AddParticipants(ctx context.Context, conversationID int64, participants []model.Participant) error
	ListParticipants(ctx context.Context, conversationID int64) ([]model.Participant, error)
	GetParticipant(ctx context.Context, conversationID, userID int64) (*model.Participant, error)
	RemoveParticipant(ctx context.Context, conversationID, userID int64) error
	MarkRead(ctx context.Context, conversationID, userID int64, readAt time.Time) error
}

// MessageStore defines the contract for message data access
type MessageStore interface {
	Insert(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	ListByConversation(ctx context.Context, conversationID int64, cursor *time.Time, take int32) ([]model.Message, error)
	UnreadCount(ctx context.Context, conversationID, userID int64) (int64, error)
	SoftDelete(ctx context.Context, id int64, deletedAt time.Time) error
}
