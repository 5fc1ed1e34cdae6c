package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"opsdeck.app/chat/common/id"
	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/store"
)

// TeamService lazily provisions the single conversation each team owns. The
// member set is derived from the union of the client-team and template-team
// membership collections at creation time; later joiners are added on open.
type TeamService interface {
	OpenOrCreate(ctx context.Context, actor model.User, teamID int64) (*model.Conversation, error)
}

type teamService struct {
	txRunner  TxRunner
	teamStore store.TeamStore
	convStore store.ConversationStore
}

func NewTeamService(txRunner TxRunner, teamStore store.TeamStore, convStore store.ConversationStore) TeamService {
	return &teamService{
		txRunner:  txRunner,
		teamStore: teamStore,
		convStore: convStore,
	}
}

func (s *teamService) OpenOrCreate(ctx context.Context, actor model.User, teamID int64) (*model.Conversation, error) {
	team, err := s.teamStore.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading team: %w", err)
	}

	memberIDs, err := s.teamStore.ListMemberIDs(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing team members: %w", err)
	}

	if !s.authorized(actor, memberIDs) {
		return nil, ErrForbidden
	}

	if conv, err := s.convStore.GetByTeamID(ctx, teamID); err == nil {
		return s.ensureParticipant(ctx, conv, actor.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up team conversation: %w", err)
	}

	conv := &model.Conversation{
		ID:          id.New(),
		Type:        model.ConversationTypeTeam,
		Title:       &team.Name,
		CreatedByID: actor.ID,
		TeamID:      &teamID,
	}
	now := time.Now()
	participants := buildParticipants(conv.ID, actor.ID, dedupeWith(memberIDs, actor.ID), now)

	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		if err := stores.Conversations().Insert(ctx, conv, nil); err != nil {
			return err
		}
		return stores.Conversations().AddParticipants(ctx, conv.ID, participants)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent member provisioned it first; join theirs.
			existing, err := s.convStore.GetByTeamID(ctx, teamID)
			if err != nil {
				return nil, fmt.Errorf("looking up team conversation after conflict: %w", err)
			}
			return s.ensureParticipant(ctx, existing, actor.ID)
		}
		return nil, fmt.Errorf("creating team conversation: %w", err)
	}

	conv.Participants = participants

	slog.InfoContext(ctx, "team conversation created",
		"conversation_id", conv.ID,
		"team_id", teamID,
		"member_count", len(participants),
	)

	return conv, nil
}

// authorized: admins and managers always; everyone else must be in the
// derived membership union.
func (s *teamService) authorized(actor model.User, memberIDs []int64) bool {
	if actor.Role == model.RoleAdmin || actor.Role == model.RoleManager {
		return true
	}
	for _, id := range memberIDs {
		if id == actor.ID {
			return true
		}
	}
	return false
}

func (s *teamService) ensureParticipant(ctx context.Context, conv *model.Conversation, userID int64) (*model.Conversation, error) {
	err := s.convStore.AddParticipants(ctx, conv.ID, []model.Participant{{
		ConversationID: conv.ID,
		UserID:         userID,
		Role:           model.ParticipantRoleMember,
		JoinedAt:       time.Now(),
	}})
	if err != nil {
		return nil, fmt.Errorf("joining team conversation: %w", err)
	}
	return conv, nil
}
