package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"opsdeck.app/chat/core/db"
)

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.q)
}

func (s *Stores) Clients() ClientStore {
	return newClientStore(s.q)
}

func (s *Stores) Teams() TeamStore {
	return newTeamStore(s.q)
}

func (s *Stores) Conversations() ConversationStore {
	return newConversationStore(s.q)
}

func (s *Stores) Messages() MessageStore {
	return newMessageStore(s.q)
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
