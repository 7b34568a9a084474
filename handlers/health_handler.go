package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/silvioiatech/UmbraSIL/database"
	"github.com/silvioiatech/UmbraSIL/sshpool"
)

// HealthHandler 健康检查接口
type HealthHandler struct {
	pool      *sshpool.Pool
	startedAt time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(pool *sshpool.Pool) *HealthHandler {
	return &HealthHandler{
		pool:      pool,
		startedAt: time.Now(),
	}
}

// GinHealthz 返回服务运行状态与连接池统计
func (h *HealthHandler) GinHealthz(c *gin.Context) {
	stats := h.pool.Stats()

	dbState := "disabled"
	if database.DB != nil {
		dbState = "ok"
		if sqlDB, err := database.DB.DB(); err != nil || sqlDB.Ping() != nil {
			dbState = "error"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"database":       dbState,
		"pool": gin.H{
			"max_sessions": stats.MaxSessions,
			"in_use":       stats.InUse,
			"idle":         stats.Idle,
		},
	})
}
