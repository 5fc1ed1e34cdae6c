package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"opsdeck.app/chat/common/logger"
	"opsdeck.app/chat/internal/model"
	"opsdeck.app/chat/internal/store"
)

type contextKey string

const (
	actorContextKey contextKey = "actor"

	// userIDHeader carries the identity resolved by the upstream gateway.
	// Authentication itself happens outside this service.
	userIDHeader = "X-User-ID"
)

// ResolveActor loads the acting user from the gateway-resolved header, stamps
// their presence heartbeat, and attaches them to the request context. Absence
// or an unknown id is Unauthenticated.
func ResolveActor(users store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(userIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		ctx := c.Request.Context()
		user, err := users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve identity"})
			return
		}

		// Presence heartbeat. Best effort; a failed touch should not block
		// the request.
		if err := users.TouchLastSeen(ctx, user.ID, time.Now()); err != nil {
			slog.WarnContext(ctx, "failed to update last seen", "error", err, "user_id", user.ID)
		}

		ctx = logger.WithLogFields(ctx, logger.LogFields{ActorID: logger.Ptr(user.ID)})
		c.Request = c.Request.WithContext(
			context.WithValue(ctx, actorContextKey, user))
		c.Next()
	}
}

// GetActor returns the resolved actor, or nil outside ResolveActor.
func GetActor(ctx context.Context) *model.User {
	actor, _ := ctx.Value(actorContextKey).(*model.User)
	return actor
}
