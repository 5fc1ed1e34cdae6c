package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"opsdeck.app/chat/core/db"
	"opsdeck.app/chat/internal/model"
)

type clientStore struct {
	q db.Querier
}

func newClientStore(q db.Querier) ClientStore {
	return &clientStore{q: q}
}

func (s *clientStore) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	var c model.Client
	err := s.q.QueryRow(ctx,
		"SELECT id, name, am_id, created_at FROM clients WHERE id = $1", id).
		Scan(&c.ID, &c.Name, &c.AMID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *clientStore) ListIDsByAM(ctx context.Context, amID int64) ([]int64, error) {
	rows, err := s.q.Query(ctx,
		"SELECT id FROM clients WHERE am_id = $1", amID)
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
