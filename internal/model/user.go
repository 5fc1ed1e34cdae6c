package model

import "time"

type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleAgent   UserRole = "agent"
	RoleQC      UserRole = "qc"
	RoleAM      UserRole = "am"
	RoleClient  UserRole = "client"
)

type User struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Role       UserRole   `json:"role"`
	ClientID   *int64     `json:"client_id,omitempty"` // set only for role=client
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// OnlineWindow is how recent last_seen_at must be for a user to count as
// online. Presence is a heuristic recomputed on read, never subscribed state.
const OnlineWindow = 2 * time.Minute

// IsOnline reports whether the user counts as online at the given instant.
func (u *User) IsOnline(now time.Time) bool {
	return u.LastSeenAt != nil && now.Sub(*u.LastSeenAt) <= OnlineWindow
}
