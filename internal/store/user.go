package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"opsdeck.app/chat/core/db"
	"opsdeck.app/chat/internal/model"
)

type userStore struct {
	q db.Querier
}

func newUserStore(q db.Querier) UserStore {
	return &userStore{q: q}
}

const userColumns = "id, name, email, role, client_id, last_seen_at, active, created_at, updated_at"

func (s *userStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.q.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *userStore) GetByIDs(ctx context.Context, ids []int64) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}

	rows, err := s.q.Query(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectUsers(rows)
}

func (s *userStore) ListActive(ctx context.Context, opts ListUsersOptions) ([]model.User, error) {
	var (
		conds = []string{"active"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.ExcludeID != 0 {
		conds = append(conds, "id <> "+arg(opts.ExcludeID))
	}
	if len(opts.ExcludeRoles) > 0 {
		conds = append(conds, "role <> ALL("+arg(roleStrings(opts.ExcludeRoles))+")")
	}
	if len(opts.Roles) > 0 || len(opts.ClientIDs) > 0 {
		var alts []string
		if len(opts.Roles) > 0 {
			alts = append(alts, "role = ANY("+arg(roleStrings(opts.Roles))+")")
		}
		if len(opts.ClientIDs) > 0 {
			alts = append(alts, "client_id = ANY("+arg(opts.ClientIDs)+")")
		}
		conds = append(conds, "("+strings.Join(alts, " OR ")+")")
	}
	if opts.Search != "" {
		p := arg("%" + opts.Search + "%")
		conds = append(conds, "(name ILIKE "+p+" OR email ILIKE "+p+")")
	}

	query := "SELECT " + userColumns + " FROM users WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY name, id"

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectUsers(rows)
}

func (s *userStore) TouchLastSeen(ctx context.Context, id int64, seenAt time.Time) error {
	_, err := s.q.Exec(ctx,
		"UPDATE users SET last_seen_at = GREATEST(COALESCE(last_seen_at, 'epoch'::timestamptz), $2) WHERE id = $1",
		id, seenAt)
	return err
}

func roleStrings(roles []model.UserRole) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.ClientID,
		&u.LastSeenAt, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]model.User, error) {
	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
