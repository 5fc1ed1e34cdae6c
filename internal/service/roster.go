package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/store"
)

type RosterService interface {
	Roster(ctx context.Context, actor model.User, search string) (*model.Roster, error)
}

type rosterService struct {
	userStore store.UserStore
	clients   store.ClientStore
}

func NewRosterService(userStore store.UserStore, clients store.ClientStore) RosterService {
	return &rosterService{
		userStore: userStore,
		clients:   clients,
	}
}

// Roster computes the role-scoped visible-user set and partitions it by
// presence. Presence is recomputed from last_seen_at on every call; there is
// no subscription state to get out of sync.
func (s *rosterService) Roster(ctx context.Context, actor model.User, search string) (*model.Roster, error) {
	visible, err := s.visibleUsers(ctx, actor, search)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	roster := &model.Roster{
		Online:  []model.RosterEntry{},
		Offline: []model.RosterEntry{},
	}
	for _, u := range visible {
		entry := model.RosterEntry{User: u, Online: u.IsOnline(now)}
		if entry.Online {
			roster.Online = append(roster.Online, entry)
		} else {
			roster.Offline = append(roster.Offline, entry)
		}
	}
	roster.OnlineCount = len(roster.Online)
	roster.OfflineCount = len(roster.Offline)
	return roster, nil
}

func (s *rosterService) visibleUsers(ctx context.Context, actor model.User, search string) ([]model.User, error) {
	switch actor.Role {
	case model.RoleClient:
		return s.clientVisibleUsers(ctx, actor, search)

	case model.RoleAgent:
		return s.userStore.ListActive(ctx, store.ListUsersOptions{
			ExcludeID:    actor.ID,
			ExcludeRoles: []model.UserRole{model.RoleClient, model.RoleAM},
			Search:       search,
		})

	case model.RoleAM:
		managed, err := s.clients.ListIDsByAM(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("listing managed clients: %w", err)
		}
		return s.userStore.ListActive(ctx, store.ListUsersOptions{
			ExcludeID: actor.ID,
			Roles:     []model.UserRole{model.RoleAdmin, model.RoleManager},
			ClientIDs: managed,
			Search:    search,
		})

	default:
		return s.userStore.ListActive(ctx, store.ListUsersOptions{
			ExcludeID: actor.ID,
			Search:    search,
		})
	}
}

// clientVisibleUsers: a client sees only their assigned AM, zero or one
// entries.
func (s *rosterService) clientVisibleUsers(ctx context.Context, actor model.User, search string) ([]model.User, error) {
	if actor.ClientID == nil {
		return []model.User{}, nil
	}

	client, err := s.clients.GetByID(ctx, *actor.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []model.User{}, nil
		}
		return nil, fmt.Errorf("loading client record: %w", err)
	}
	if client.AMID == nil {
		return []model.User{}, nil
	}

	am, err := s.userStore.GetByID(ctx, *client.AMID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []model.User{}, nil
		}
		return nil, fmt.Errorf("loading assigned am: %w", err)
	}
	if !am.Active || !matchesSearch(*am, search) {
		return []model.User{}, nil
	}
	return []model.User{*am}, nil
}

func matchesSearch(u model.User, search string) bool {
	if search == "" {
		return true
	}
	q := strings.ToLower(search)
	return strings.Contains(strings.ToLower(u.Name), q) ||
		strings.Contains(strings.ToLower(u.Email), q)
}
