package router

import (
	"github.com/gin-gonic/gin"

	"opsdeck.app/chat/internal/http/handler"
)

func ConversationRouter(rg *gin.RouterGroup, ch *handler.ConversationHandler, mh *handler.MessageHandler) {
	rg.POST("", ch.Create)
	rg.GET("", ch.List)
	rg.POST("/dm", ch.OpenDM)
	rg.POST("/team/:teamId", ch.OpenTeam)
	rg.GET("/:id", ch.Get)

	rg.GET("/:id/participants", ch.ListParticipants)
	rg.POST("/:id/participants", ch.AddParticipants)
	rg.DELETE("/:id/participants/:userId", ch.RemoveParticipant)

	rg.POST("/:id/messages", mh.Send)
	rg.GET("/:id/messages", mh.List)
	rg.DELETE("/:id/messages/:messageId", mh.Delete)

	rg.POST("/:id/read", ch.MarkRead)
}
