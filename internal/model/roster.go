package model

// RosterEntry is one visible user in the roster, with presence resolved at
// read time.
type RosterEntry struct {
	User   User `json:"user"`
	Online bool `json:"online"`
}

// Roster is the role-scoped set of users visible to a requester, partitioned
// by presence.
type Roster struct {
	Online       []RosterEntry `json:"online"`
	Offline      []RosterEntry `json:"offline"`
	OnlineCount  int           `json:"online_count"`
	OfflineCount int           `json:"offline_count"`
}
