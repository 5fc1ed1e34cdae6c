package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"opsdeck.app/chat/internal/http/middleware"
	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/service"
)

type ConversationHandler struct {
	conversations service.ConversationService
	teams         service.TeamService
}

func NewConversationHandler(conversations service.ConversationService, teams service.TeamService) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		teams:         teams,
	}
}

type createConversationRequest struct {
	Type         string  `json:"type" binding:"required"`
	Title        *string `json:"title"`
	MemberIDs    []int64 `json:"member_ids"`
	ClientID     *int64  `json:"client_id"`
	TeamID       *int64  `json:"team_id"`
	AssignmentID *int64  `json:"assignment_id"`
	TaskID       *int64  `json:"task_id"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	conv, err := h.conversations.Create(ctx, *actor, service.CreateConversationInput{
		Type:         model.ConversationType(req.Type),
		Title:        req.Title,
		MemberIDs:    req.MemberIDs,
		ClientID:     req.ClientID,
		TeamID:       req.TeamID,
		AssignmentID: req.AssignmentID,
		TaskID:       req.TaskID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conv)
}

type conversationResponse struct {
	Conversation *model.Conversation `json:"conversation"`
	UnreadCount  int64               `json:"unread_count"`
}

func (h *ConversationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	convID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	conv, unread, err := h.conversations.Get(ctx, *actor, convID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversationResponse{Conversation: conv, UnreadCount: unread})
}

type listConversationsResponse struct {
	Conversations []model.ConversationSummary `json:"conversations"`
	NextCursor    *string                     `json:"next_cursor,omitempty"`
}

func (h *ConversationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	cursor, ok := parseCursor(c)
	if !ok {
		return
	}
	take := parseTake(c, 20, 100)

	summaries, err := h.conversations.ListMine(ctx, *actor, cursor, take)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := listConversationsResponse{Conversations: summaries}
	if n := len(summaries); n == int(take) && n > 0 {
		last := summaries[n-1]
		at := last.Conversation.CreatedAt
		if last.LastMessage != nil {
			at = last.LastMessage.CreatedAt
		}
		s := at.Format(time.RFC3339Nano)
		resp.NextCursor = &s
	}

	c.JSON(http.StatusOK, resp)
}

type openDMRequest struct {
	TargetUserID int64 `json:"target_user_id" binding:"required"`
}

func (h *ConversationHandler) OpenDM(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	var req openDMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	conv, err := h.conversations.OpenOrCreateDM(ctx, *actor, req.TargetUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) OpenTeam(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	teamID, ok := parseIDParam(c, "teamId")
	if !ok {
		return
	}

	conv, err := h.teams.OpenOrCreate(ctx, *actor, teamID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) ListParticipants(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	convID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	participants, err := h.conversations.ListParticipants(ctx, *actor, convID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

type addParticipantsRequest struct {
	UserIDs []int64 `json:"user_ids" binding:"required"`
}

func (h *ConversationHandler) AddParticipants(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	convID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req addParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.conversations.AddParticipants(ctx, *actor, convID, req.UserIDs); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	convID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "userId")
	if !ok {
		return
	}

	if err := h.conversations.RemoveParticipant(ctx, *actor, convID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	convID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.conversations.MarkRead(ctx, *actor, convID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return 0, false
	}
	return id, true
}

func parseCursor(c *gin.Context) (*time.Time, bool) {
	raw := c.Query("cursor")
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return nil, false
	}
	return &t, true
}

// parseTake clamps to the same ceiling the service applies so next_cursor
// math sees the effective page size, not the requested one.
func parseTake(c *gin.Context, fallback, max int32) int32 {
	raw := c.Query("take")
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > int64(max) {
		return max
	}
	return int32(n)
}
