package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"opsdeck.app/chat/core/db"
	"opsdeck.app/chat/internal/model"
)

type teamStore struct {
	q db.Querier
}

func newTeamStore(q db.Querier) TeamStore {
	return &teamStore{q: q}
}

func (s *teamStore) GetByID(ctx context.Context, id int64) (*model.Team, error) {
	var t model.Team
	err := s.q.QueryRow(ctx,
		"SELECT id, name, created_at FROM teams WHERE id = $1", id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListMemberIDs returns the union of agent ids across the client-team and
// template-team membership collections.
func (s *teamStore) ListMemberIDs(ctx context.Context, teamID int64) ([]int64, error) {
	rows, err := s.q.Query(ctx, `
		SELECT agent_id FROM team_client_members WHERE team_id = $1
		UNION
		SELECT agent_id FROM team_template_members WHERE team_id = $1`,
		teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
