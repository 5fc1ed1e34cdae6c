package router

import (
	"github.com/gin-gonic/gin"

	"opsdeck.app/chat/internal/http/handler"
)

func MessageRouter(rg *gin.RouterGroup, mh *handler.MessageHandler) {
	rg.POST("/:messageId/forward", mh.Forward)
}
