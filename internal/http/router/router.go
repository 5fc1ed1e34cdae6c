package router

import (
	"github.com/gin-gonic/gin"

	"opsdeck.app/chat/internal/http/handler"
	"opsdeck.app/chat/internal/http/middleware"
	"opsdeck.app/chat/internal/service"
	"opsdeck.app/chat/internal/store"
)

func SetupRoutes(router *gin.Engine, services *service.Services, stores *store.Stores) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.ResolveActor(stores.Users()))
	{
		convHandler := handler.NewConversationHandler(services.Conversations(), services.Teams())
		msgHandler := handler.NewMessageHandler(services.Conversations(), services.Forwards())
		ConversationRouter(v1.Group("/conversations"), convHandler, msgHandler)
		MessageRouter(v1.Group("/messages"), msgHandler)

		rosterHandler := handler.NewRosterHandler(services.Roster())
		v1.GET("/roster", rosterHandler.Get)
	}
}
