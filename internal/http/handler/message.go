package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"opsdeck.app/chat/internal/http/middleware"
	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/service"
)

type MessageHandler struct {
	conversations service.ConversationService
	forwards      service.ForwardService
}

func NewMessageHandler(conversations service.ConversationService, forwards service.ForwardService) *MessageHandler {
	return &MessageHandler{
		conversations: conversations,
		forwards:      forwards,
	}
}

// Content is optional at the binding layer: an attachment-only message is
// valid, and the service rejects the truly empty case.
type sendMessageRequest struct {
	Type    string                 `json:"type"`
	Content string                 `json:"content"`
	Files   []model.FileAttachment `json:"files"`
}

func (h *MessageHandler) Send(c *gin.Context) {
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

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	msgType := model.MessageTypeText
	if req.Type != "" {
		msgType = model.MessageType(req.Type)
	}

	msg, err := h.conversations.SendMessage(ctx, *actor, convID, service.SendMessageInput{
		Type:    msgType,
		Content: req.Content,
		Files:   req.Files,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

type listMessagesResponse struct {
	Messages   []model.Message `json:"messages"`
	NextCursor *string         `json:"next_cursor,omitempty"`
}

func (h *MessageHandler) List(c *gin.Context) {
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
	cursor, ok := parseCursor(c)
	if !ok {
		return
	}
	take := parseTake(c, 50, 200)

	messages, err := h.conversations.ListMessages(ctx, *actor, convID, cursor, take)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := listMessagesResponse{Messages: messages}
	if n := len(messages); n == int(take) && n > 0 {
		s := messages[n-1].CreatedAt.Format(time.RFC3339Nano)
		resp.NextCursor = &s
	}

	c.JSON(http.StatusOK, resp)
}

func (h *MessageHandler) Delete(c *gin.Context) {
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
	msgID, ok := parseIDParam(c, "messageId")
	if !ok {
		return
	}

	if err := h.conversations.DeleteMessage(ctx, *actor, convID, msgID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type forwardRequest struct {
	TargetUserIDs         []int64 `json:"target_user_ids"`
	TargetConversationIDs []int64 `json:"target_conversation_ids"`
}

func (h *MessageHandler) Forward(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	msgID, ok := parseIDParam(c, "messageId")
	if !ok {
		return
	}

	var req forwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.forwards.Forward(ctx, *actor, msgID, req.TargetUserIDs, req.TargetConversationIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
