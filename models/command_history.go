package models

import (
	"time"

	"gorm.io/gorm"
)

// CommandHistory 已执行命令的审计记录
type CommandHistory struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"-"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	UserID      int64          `gorm:"not null;index" json:"user_id"`
	Command     string         `gorm:"type:text;not null" json:"command"`
	ExitStatus  int            `json:"exit_status"`
	DurationMS  int64          `json:"duration_ms"`
	Destructive bool           `json:"destructive"` // 是否经过二次确认
}

// TableName 指定表名
func (CommandHistory) TableName() string {
	return "command_histories"
}

// CommandHistoryRepository 命令历史仓储
type CommandHistoryRepository struct {
	db *gorm.DB
}

// NewCommandHistoryRepository 创建命令历史仓储
func NewCommandHistoryRepository(db *gorm.DB) *CommandHistoryRepository {
	return &CommandHistoryRepository{db: db}
}

// Create 创建命令记录
func (r *CommandHistoryRepository) Create(history *CommandHistory) error {
	return r.db.Create(history).Error
}

// GetByUserID 获取指定用户的命令历史
func (r *CommandHistoryRepository) GetByUserID(userID int64, limit int) ([]*CommandHistory, error) {
	var histories []*CommandHistory
	query := r.db.Where("user_id = ?", userID).Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}

// GetRecent 获取最近的命令（所有用户）
func (r *CommandHistoryRepository) GetRecent(limit int) ([]*CommandHistory, error) {
	var histories []*CommandHistory
	err := r.db.Order("created_at DESC").Limit(limit).Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}

// DeleteByUserID 删除指定用户的所有命令历史
func (r *CommandHistoryRepository) DeleteByUserID(userID int64) error {
	return r.db.Where("user_id = ?", userID).Delete(&CommandHistory{}).Error
}
