package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/silvioiatech/UmbraSIL/models"
)

// CommandHandler 命令审计历史查询接口
type CommandHandler struct {
	repo *models.CommandHistoryRepository
}

// NewCommandHandler 创建命令处理器
func NewCommandHandler(repo *models.CommandHistoryRepository) *CommandHandler {
	return &CommandHandler{repo: repo}
}

// GinGetUserCommands 获取指定用户的命令历史
func (h *CommandHandler) GinGetUserCommands(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "缺少或无效的user_id参数"})
		return
	}

	limitStr := c.DefaultQuery("limit", "100")
	limit, _ := strconv.Atoi(limitStr)

	commands, err := h.repo.GetByUserID(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": commands})
}

// GinGetRecentCommands 获取最近的命令（所有用户）
func (h *CommandHandler) GinGetRecentCommands(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, _ := strconv.Atoi(limitStr)

	commands, err := h.repo.GetRecent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": commands})
}

// GinClearUserCommands 清空指定用户的命令历史
func (h *CommandHandler) GinClearUserCommands(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "缺少或无效的user_id参数"})
		return
	}

	if err := h.repo.DeleteByUserID(userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "清空成功"})
}
