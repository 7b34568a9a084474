package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/silvioiatech/UmbraSIL/agent"
)

// MessageHandler HTTP消息入口（不依赖WebSocket的补充通道）
type MessageHandler struct {
	orchestrator *agent.Orchestrator
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(o *agent.Orchestrator) *MessageHandler {
	return &MessageHandler{orchestrator: o}
}

// GinPostMessage 接收一条消息，异步处理，回复走WebSocket通道
func (h *MessageHandler) GinPostMessage(c *gin.Context) {
	var req struct {
		UserID int64  `json:"user_id"`
		Text   string `json:"text"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "参数错误"})
		return
	}
	if req.UserID <= 0 || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "user_id和text不能为空"})
		return
	}

	go h.orchestrator.HandleMessage(context.Background(), req.UserID, req.Text)

	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "已接收"})
}

// GinPostAction 接收按钮操作（confirm/cancel/retry）
func (h *MessageHandler) GinPostAction(c *gin.Context) {
	var req struct {
		UserID int64  `json:"user_id"`
		Action string `json:"action"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "参数错误"})
		return
	}
	if req.UserID <= 0 || req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "user_id和action不能为空"})
		return
	}

	go h.orchestrator.HandleAction(context.Background(), req.UserID, agent.Action(req.Action))

	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "已接收"})
}
