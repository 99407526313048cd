package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/handler/request"
	"github.com/IlliaDrahun/multichain/internal/handler/response"
	"github.com/IlliaDrahun/multichain/internal/service/notify"
	"github.com/IlliaDrahun/multichain/pkg/errno"
	"github.com/IlliaDrahun/multichain/pkg/logger"
	"github.com/IlliaDrahun/multichain/pkg/validator"
)

type WSHandler struct {
	hub *notify.Hub
}

func NewWSHandler(hub *notify.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Subscribe 建立 websocket 连接并加入 userAddress 房间
// GET /ws?userAddress=0x...
func (h *WSHandler) Subscribe(c *gin.Context) {
	var req request.SubscribeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	// 升级失败时 upgrader 已经写回了 HTTP 错误
	if err := h.hub.ServeWS(c.Writer, c.Request, req.UserAddress); err != nil {
		logger.Warn("Websocket upgrade failed", zap.Error(err))
	}
}
