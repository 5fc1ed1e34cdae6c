package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"opsdeck.app/chat/common/id"
	"opsdeck.app/chat/internal/events"
	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/policy"
	"opsdeck.app/chat/internal/store"
)

type ForwardTargetKind string

const (
	ForwardTargetUser         ForwardTargetKind = "user"
	ForwardTargetConversation ForwardTargetKind = "conversation"
)

// notDelivered is the single reason string reported for any dropped target,
// so a denial never reveals whether the target was unauthorized, unknown, or
// out of reach.
const notDelivered = "not delivered"

type ForwardTargetResult struct {
	Kind           ForwardTargetKind `json:"kind"`
	TargetID       int64             `json:"target_id"`
	ConversationID int64             `json:"conversation_id,omitempty"`
	MessageID      int64             `json:"message_id,omitempty"`
	OK             bool              `json:"ok"`
	Reason         string            `json:"reason,omitempty"`
}

type ForwardResult struct {
	Results   []ForwardTargetResult `json:"results"`
	Delivered int                   `json:"delivered"`
}

// dmOpener is the slice of ConversationService the relay needs to reach a
// user target.
type dmOpener interface {
	OpenOrCreateDM(ctx context.Context, actor model.User, targetUserID int64) (*model.Conversation, error)
}

// ForwardService duplicates a message into other conversations with
// provenance, filtering destinations through the policy matrix.
type ForwardService interface {
	Forward(ctx context.Context, actor model.User, sourceMessageID int64, targetUserIDs, targetConversationIDs []int64) (*ForwardResult, error)
}

type forwardService struct {
	userStore store.UserStore
	clients   store.ClientStore
	convStore store.ConversationStore
	msgStore  store.MessageStore
	dms       dmOpener
	producer  events.Producer
}

func NewForwardService(
	userStore store.UserStore,
	clients store.ClientStore,
	convStore store.ConversationStore,
	msgStore store.MessageStore,
	dms dmOpener,
	producer events.Producer,
) ForwardService {
	return &forwardService{
		userStore: userStore,
		clients:   clients,
		convStore: convStore,
		msgStore:  msgStore,
		dms:       dms,
		producer:  producer,
	}
}

func (s *forwardService) Forward(ctx context.Context, actor model.User, sourceMessageID int64, targetUserIDs, targetConversationIDs []int64) (*ForwardResult, error) {
	if len(targetUserIDs) == 0 && len(targetConversationIDs) == 0 {
		return nil, fmt.Errorf("%w: no forward targets", ErrInvalidInput)
	}

	source, err := s.msgStore.GetByID(ctx, sourceMessageID)
	if err != nil || source.IsDeleted() {
		return nil, ErrNotFound
	}

	// Outsiders get NotFound, not Forbidden: the message's existence is not
	// theirs to learn.
	if _, err := s.convStore.GetParticipant(ctx, source.ConversationID, actor.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("checking source participant: %w", err)
	}

	sender, err := s.userStore.GetByID(ctx, source.SenderID)
	if err != nil {
		return nil, fmt.Errorf("loading original sender: %w", err)
	}

	actorCtx, err := loadActorContext(ctx, s.clients, actor)
	if err != nil {
		return nil, err
	}

	userResults, survivingUsers, err := s.filterUserTargets(ctx, actorCtx, targetUserIDs)
	if err != nil {
		return nil, err
	}
	convResults, survivingConvs := s.filterConversationTargets(ctx, actorCtx, targetConversationIDs)

	if len(survivingUsers) == 0 && len(survivingConvs) == 0 {
		return nil, ErrForbidden
	}

	relayed := relayedMessage(source, sender, actor.ID)
	result := &ForwardResult{Results: append(userResults, convResults...)}

	for i := range result.Results {
		r := &result.Results[i]
		if !r.OK {
			continue
		}
		r.OK = false // proven on delivery below

		var convID int64
		switch r.Kind {
		case ForwardTargetUser:
			conv, err := s.dms.OpenOrCreateDM(ctx, actor, r.TargetID)
			if err != nil {
				r.Reason = notDelivered
				continue
			}
			convID = conv.ID
		case ForwardTargetConversation:
			convID = r.TargetID
		}

		msg := relayed
		msg.ID = id.New()
		msg.ConversationID = convID
		if err := s.msgStore.Insert(ctx, &msg); err != nil {
			slog.WarnContext(ctx, "forward relay failed",
				"error", err,
				"source_message_id", sourceMessageID,
				"conversation_id", convID,
			)
			r.Reason = notDelivered
			continue
		}

		r.OK = true
		r.ConversationID = convID
		r.MessageID = msg.ID
		result.Delivered++

		s.producer.Emit(ctx, events.MessageEvent{
			Type:           events.EventTypeMessageForwarded,
			ConversationID: convID,
			MessageID:      msg.ID,
			SenderID:       actor.ID,
		})
	}

	slog.InfoContext(ctx, "message forwarded",
		"source_message_id", sourceMessageID,
		"actor_id", actor.ID,
		"delivered", result.Delivered,
		"requested", len(result.Results),
	)

	return result, nil
}

// filterUserTargets runs the policy matrix over the requested users. Entries
// that fail the matrix come back pre-marked not-OK with a generic reason; a
// store failure is the caller's error, not a denial.
func (s *forwardService) filterUserTargets(ctx context.Context, actorCtx policy.ActorContext, targetUserIDs []int64) ([]ForwardTargetResult, []int64, error) {
	results := make([]ForwardTargetResult, 0, len(targetUserIDs))
	surviving := []int64{}
	if len(targetUserIDs) == 0 {
		return results, surviving, nil
	}

	users, err := s.userStore.GetByIDs(ctx, targetUserIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("loading forward targets: %w", err)
	}
	byID := make(map[int64]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, uid := range dedupe(targetUserIDs) {
		r := ForwardTargetResult{Kind: ForwardTargetUser, TargetID: uid, Reason: notDelivered}
		target, ok := byID[uid]
		if ok && uid != actorCtx.User.ID &&
			policy.Decide(actorCtx, policy.OperationForward, target) == policy.Allow {
			r.OK = true
			r.Reason = ""
			surviving = append(surviving, uid)
		}
		results = append(results, r)
	}
	return results, surviving, nil
}

// filterConversationTargets keeps conversations the actor already belongs
// to. Client actors are further restricted to their dm with the assigned AM.
func (s *forwardService) filterConversationTargets(ctx context.Context, actorCtx policy.ActorContext, targetConversationIDs []int64) ([]ForwardTargetResult, []int64) {
	results := make([]ForwardTargetResult, 0, len(targetConversationIDs))
	surviving := []int64{}

	for _, cid := range dedupe(targetConversationIDs) {
		r := ForwardTargetResult{Kind: ForwardTargetConversation, TargetID: cid, Reason: notDelivered}
		if s.conversationAllowed(ctx, actorCtx, cid) {
			r.OK = true
			r.Reason = ""
			surviving = append(surviving, cid)
		}
		results = append(results, r)
	}
	return results, surviving
}

func (s *forwardService) conversationAllowed(ctx context.Context, actorCtx policy.ActorContext, conversationID int64) bool {
	if _, err := s.convStore.GetParticipant(ctx, conversationID, actorCtx.User.ID); err != nil {
		return false
	}
	if actorCtx.User.Role != model.RoleClient {
		return true
	}

	// A client may only relay into the dm with their assigned AM: exactly
	// {client, am}, nothing else.
	if actorCtx.AssignedAMID == nil {
		return false
	}
	participants, err := s.convStore.ListParticipants(ctx, conversationID)
	if err != nil || len(participants) != 2 {
		return false
	}
	ids := map[int64]struct{}{
		participants[0].UserID: {},
		participants[1].UserID: {},
	}
	_, hasActor := ids[actorCtx.User.ID]
	_, hasAM := ids[*actorCtx.AssignedAMID]
	return hasActor && hasAM
}

// relayedMessage builds the template for each destination copy: prefixed
// content, original files, and forwarding provenance.
func relayedMessage(source *model.Message, sender *model.User, forwardedByID int64) model.Message {
	return model.Message{
		SenderID: forwardedByID,
		Type:     source.Type,
		Content:  fmt.Sprintf("Forwarded from %s: %s", sender.Name, source.Content),
		Attachments: model.Attachments{
			Files: source.Attachments.Files,
			Forward: &model.ForwardProvenance{
				SourceMessageID:      source.ID,
				SourceConversationID: source.ConversationID,
				ForwardedByID:        forwardedByID,
				OriginalSenderID:     source.SenderID,
			},
		},
	}
}
