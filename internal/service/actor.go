package service

import (
	"context"
	"errors"
	"fmt"

	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/policy"
	"opsdeck.app/chat/internal/store"
)

// loadActorContext assembles the relational facts the policy matrix needs
// for the given actor: the assigned AM for client actors, the managed client
// set for AM actors. Everything else evaluates on the actor row alone.
func loadActorContext(ctx context.Context, clients store.ClientStore, actor model.User) (policy.ActorContext, error) {
	actorCtx := policy.ActorContext{User: actor}

	switch actor.Role {
	case model.RoleClient:
		if actor.ClientID == nil {
			return actorCtx, nil
		}
		client, err := clients.GetByID(ctx, *actor.ClientID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return actorCtx, nil
			}
			return actorCtx, fmt.Errorf("loading client record: %w", err)
		}
		actorCtx.AssignedAMID = client.AMID

	case model.RoleAM:
		ids, err := clients.ListIDsByAM(ctx, actor.ID)
		if err != nil {
			return actorCtx, fmt.Errorf("listing managed clients: %w", err)
		}
		managed := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			managed[id] = struct{}{}
		}
		actorCtx.ManagedClientIDs = managed
	}

	return actorCtx, nil
}
