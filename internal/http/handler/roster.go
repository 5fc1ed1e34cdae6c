package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"opsdeck.app/chat/internal/http/middleware"
	"opsdeck.app/chat/internal/service"
)

type RosterHandler struct {
	roster service.RosterService
}

func NewRosterHandler(roster service.RosterService) *RosterHandler {
	return &RosterHandler{roster: roster}
}

func (h *RosterHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.GetActor(ctx)
	if actor == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	roster, err := h.roster.Roster(ctx, *actor, c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, roster)
}
