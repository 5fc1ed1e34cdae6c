package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"opsdeck.app/chat/common/id"
	"opsdeck.app/chat/internal/events"
	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/policy"
	"opsdeck.app/chat/internal/store"
)

type CreateConversationInput struct {
	Type         model.ConversationType
	Title        *string
	MemberIDs    []int64
	ClientID     *int64
	TeamID       *int64
	AssignmentID *int64
	TaskID       *int64
}

type SendMessageInput struct {
	Type    model.MessageType
	Content string
	Files   []model.FileAttachment
}

type ConversationService interface {
	Create(ctx context.Context, actor model.User, input CreateConversationInput) (*model.Conversation, error)
	OpenOrCreateDM(ctx context.Context, actor model.User, targetUserID int64) (*model.Conversation, error)
	Get(ctx context.Context, actor model.User, conversationID int64) (*model.Conversation, int64, error)
	ListMine(ctx context.Context, actor model.User, cursor *time.Time, take int32) ([]model.ConversationSummary, error)
	ListParticipants(ctx context.Context, actor model.User, conversationID int64) ([]model.Participant, error)
	AddParticipants(ctx context.Context, actor model.User, conversationID int64, userIDs []int64) error
	RemoveParticipant(ctx context.Context, actor model.User, conversationID, userID int64) error
	SendMessage(ctx context.Context, actor model.User, conversationID int64, input SendMessageInput) (*model.Message, error)
	ListMessages(ctx context.Context, actor model.User, conversationID int64, cursor *time.Time, take int32) ([]model.Message, error)
	DeleteMessage(ctx context.Context, actor model.User, conversationID, messageID int64) error
	MarkRead(ctx context.Context, actor model.User, conversationID int64) error
}

type conversationService struct {
	txRunner  TxRunner
	userStore store.UserStore
	clients   store.ClientStore
	convStore store.ConversationStore
	msgStore  store.MessageStore
	producer  events.Producer
}

func NewConversationService(
	txRunner TxRunner,
	userStore store.UserStore,
	clients store.ClientStore,
	convStore store.ConversationStore,
	msgStore store.MessageStore,
	producer events.Producer,
) ConversationService {
	return &conversationService{
		txRunner:  txRunner,
		userStore: userStore,
		clients:   clients,
		convStore: convStore,
		msgStore:  msgStore,
		producer:  producer,
	}
}

func (s *conversationService) Create(ctx context.Context, actor model.User, input CreateConversationInput) (*model.Conversation, error) {
	if input.Type != model.ConversationTypeGroup && input.Type != model.ConversationTypeDM {
		return nil, fmt.Errorf("%w: unsupported conversation type %q", ErrInvalidInput, input.Type)
	}

	memberIDs := dedupeWith(input.MemberIDs, actor.ID)

	// A dm always goes through the role matrix and the find-or-create path,
	// no matter which endpoint asked for it.
	if input.Type == model.ConversationTypeDM {
		if len(memberIDs) != 2 {
			return nil, fmt.Errorf("%w: a dm needs exactly two distinct participants", ErrInvalidInput)
		}
		targetID := memberIDs[0]
		if targetID == actor.ID {
			targetID = memberIDs[1]
		}
		return s.OpenOrCreateDM(ctx, actor, targetID)
	}

	conv := &model.Conversation{
		ID:           id.New(),
		Type:         input.Type,
		Title:        input.Title,
		CreatedByID:  actor.ID,
		ClientID:     input.ClientID,
		TeamID:       input.TeamID,
		AssignmentID: input.AssignmentID,
		TaskID:       input.TaskID,
	}

	now := time.Now()
	participants := buildParticipants(conv.ID, actor.ID, memberIDs, now)

	err := s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		if err := stores.Conversations().Insert(ctx, conv, nil); err != nil {
			return err
		}
		return stores.Conversations().AddParticipants(ctx, conv.ID, participants)
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	conv.Participants = participants

	slog.InfoContext(ctx, "conversation created",
		"conversation_id", conv.ID,
		"type", conv.Type,
		"member_count", len(participants),
	)

	return conv, nil
}

// OpenOrCreateDM returns the existing dm for the unordered {actor, target}
// pair, creating it if absent. A unique index on the sorted-pair key keeps
// the pair to one logical dm; a concurrent loser retries as a lookup.
func (s *conversationService) OpenOrCreateDM(ctx context.Context, actor model.User, targetUserID int64) (*model.Conversation, error) {
	if targetUserID == actor.ID {
		return nil, fmt.Errorf("%w: cannot open a dm with yourself", ErrInvalidTarget)
	}

	target, err := s.userStore.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading target user: %w", err)
	}

	actorCtx, err := loadActorContext(ctx, s.clients, actor)
	if err != nil {
		return nil, err
	}
	switch policy.Decide(actorCtx, policy.OperationOpenDM, *target) {
	case policy.Allow:
	case policy.InvalidTarget:
		return nil, ErrInvalidTarget
	default:
		return nil, ErrForbidden
	}

	key := dmPairKey(actor.ID, target.ID)
	if conv, err := s.convStore.GetDMByKey(ctx, key); err == nil {
		return conv, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up dm: %w", err)
	}

	conv := &model.Conversation{
		ID:          id.New(),
		Type:        model.ConversationTypeDM,
		CreatedByID: actor.ID,
	}
	now := time.Now()
	participants := buildParticipants(conv.ID, actor.ID, []int64{actor.ID, target.ID}, now)

	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		if err := stores.Conversations().Insert(ctx, conv, &key); err != nil {
			return err
		}
		return stores.Conversations().AddParticipants(ctx, conv.ID, participants)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost the race: the other opener's conversation is the dm now.
			return s.convStore.GetDMByKey(ctx, key)
		}
		return nil, fmt.Errorf("creating dm: %w", err)
	}

	conv.Participants = participants

	slog.InfoContext(ctx, "dm created",
		"conversation_id", conv.ID,
		"actor_id", actor.ID,
		"target_user_id", target.ID,
	)

	return conv, nil
}

// Get returns one conversation with its roster and the caller's unread
// count. Outsiders get NotFound.
func (s *conversationService) Get(ctx context.Context, actor model.User, conversationID int64) (*model.Conversation, int64, error) {
	conv, err := s.getConversationAsParticipant(ctx, conversationID, actor.ID)
	if err != nil {
		return nil, 0, err
	}

	participants, err := s.convStore.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, 0, fmt.Errorf("listing participants: %w", err)
	}
	conv.Participants = participants

	unread, err := s.msgStore.UnreadCount(ctx, conversationID, actor.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("counting unread: %w", err)
	}
	return conv, unread, nil
}

func (s *conversationService) ListMine(ctx context.Context, actor model.User, cursor *time.Time, take int32) ([]model.ConversationSummary, error) {
	if take <= 0 {
		take = 20
	}
	if take > 100 {
		take = 100
	}
	return s.convStore.ListForUser(ctx, actor.ID, cursor, take)
}

func (s *conversationService) ListParticipants(ctx context.Context, actor model.User, conversationID int64) ([]model.Participant, error) {
	if err := s.requireParticipant(ctx, conversationID, actor.ID); err != nil {
		return nil, err
	}
	return s.convStore.ListParticipants(ctx, conversationID)
}

func (s *conversationService) AddParticipants(ctx context.Context, actor model.User, conversationID int64, userIDs []int64) error {
	conv, err := s.getConversationAsParticipant(ctx, conversationID, actor.ID)
	if err != nil {
		return err
	}
	if conv.Type == model.ConversationTypeDM {
		return fmt.Errorf("%w: dm membership is fixed", ErrConflict)
	}

	existing, err := s.convStore.ListParticipants(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("listing participants: %w", err)
	}
	present := make(map[int64]struct{}, len(existing))
	for _, p := range existing {
		present[p.UserID] = struct{}{}
	}

	var delta []int64
	for _, uid := range dedupe(userIDs) {
		if _, ok := present[uid]; !ok {
			delta = append(delta, uid)
		}
	}
	if len(delta) == 0 {
		return nil
	}

	users, err := s.userStore.GetByIDs(ctx, delta)
	if err != nil {
		return fmt.Errorf("loading users: %w", err)
	}
	if len(users) != len(delta) {
		return fmt.Errorf("%w: unknown user in participant list", ErrInvalidInput)
	}

	now := time.Now()
	participants := make([]model.Participant, 0, len(delta))
	for _, uid := range delta {
		participants = append(participants, model.Participant{
			ConversationID: conversationID,
			UserID:         uid,
			Role:           model.ParticipantRoleMember,
			JoinedAt:       now,
		})
	}

	if err := s.convStore.AddParticipants(ctx, conversationID, participants); err != nil {
		return fmt.Errorf("adding participants: %w", err)
	}

	slog.InfoContext(ctx, "participants added",
		"conversation_id", conversationID,
		"added_count", len(participants),
	)
	return nil
}

func (s *conversationService) RemoveParticipant(ctx context.Context, actor model.User, conversationID, userID int64) error {
	conv, err := s.getConversationAsParticipant(ctx, conversationID, actor.ID)
	if err != nil {
		return err
	}
	if userID == conv.CreatedByID {
		return fmt.Errorf("%w: the conversation owner cannot be removed", ErrConflict)
	}

	if err := s.convStore.RemoveParticipant(ctx, conversationID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("removing participant: %w", err)
	}

	slog.InfoContext(ctx, "participant removed",
		"conversation_id", conversationID,
		"user_id", userID,
	)
	return nil
}

func (s *conversationService) SendMessage(ctx context.Context, actor model.User, conversationID int64, input SendMessageInput) (*model.Message, error) {
	if strings.TrimSpace(input.Content) == "" && len(input.Files) == 0 {
		return nil, fmt.Errorf("%w: message needs content or attachments", ErrInvalidInput)
	}
	if err := s.requireParticipant(ctx, conversationID, actor.ID); err != nil {
		return nil, err
	}

	msgType := input.Type
	if msgType == "" {
		msgType = model.MessageTypeText
	}

	msg := &model.Message{
		ID:             id.New(),
		ConversationID: conversationID,
		SenderID:       actor.ID,
		Type:           msgType,
		Content:        input.Content,
		Attachments:    model.Attachments{Files: input.Files},
	}

	if err := s.msgStore.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	// Post-commit, best effort; the producer swallows failures.
	s.producer.Emit(ctx, events.MessageEvent{
		Type:           events.EventTypeMessageCreated,
		ConversationID: conversationID,
		MessageID:      msg.ID,
		SenderID:       actor.ID,
	})

	return msg, nil
}

func (s *conversationService) ListMessages(ctx context.Context, actor model.User, conversationID int64, cursor *time.Time, take int32) ([]model.Message, error) {
	if take <= 0 {
		take = 50
	}
	if take > 200 {
		take = 200
	}
	if err := s.requireParticipant(ctx, conversationID, actor.ID); err != nil {
		return nil, err
	}
	return s.msgStore.ListByConversation(ctx, conversationID, cursor, take)
}

func (s *conversationService) DeleteMessage(ctx context.Context, actor model.User, conversationID, messageID int64) error {
	if err := s.requireParticipant(ctx, conversationID, actor.ID); err != nil {
		return err
	}

	msg, err := s.msgStore.GetByID(ctx, messageID)
	if err != nil || msg.ConversationID != conversationID {
		return ErrNotFound
	}
	if msg.SenderID != actor.ID && actor.Role != model.RoleAdmin && actor.Role != model.RoleManager {
		return ErrForbidden
	}

	if err := s.msgStore.SoftDelete(ctx, messageID, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

func (s *conversationService) MarkRead(ctx context.Context, actor model.User, conversationID int64) error {
	if err := s.convStore.MarkRead(ctx, conversationID, actor.ID, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("marking read: %w", err)
	}
	return nil
}

// requireParticipant answers NotFound rather than Forbidden for outsiders so
// responses don't reveal that the conversation exists.
func (s *conversationService) requireParticipant(ctx context.Context, conversationID, userID int64) error {
	_, err := s.convStore.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("checking participant: %w", err)
	}
	return nil
}

func (s *conversationService) getConversationAsParticipant(ctx context.Context, conversationID, userID int64) (*model.Conversation, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	conv, err := s.convStore.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	return conv, nil
}

// dmPairKey is the deterministic key for an unordered user pair.
func dmPairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func buildParticipants(conversationID, ownerID int64, memberIDs []int64, joinedAt time.Time) []model.Participant {
	participants := make([]model.Participant, 0, len(memberIDs))
	for _, uid := range memberIDs {
		role := model.ParticipantRoleMember
		if uid == ownerID {
			role = model.ParticipantRoleOwner
		}
		participants = append(participants, model.Participant{
			ConversationID: conversationID,
			UserID:         uid,
			Role:           role,
			JoinedAt:       joinedAt,
		})
	}
	return participants
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// dedupeWith dedupes ids and guarantees required is present.
func dedupeWith(ids []int64, required int64) []int64 {
	return dedupe(append([]int64{required}, ids...))
}
