package pending

import (
	"sync"
	"time"
)

// Command 等待确认的危险命令
type Command struct {
	UserID    int64
	Command   string
	Rule      string // 触发确认的风险规则说明
	CreatedAt time.Time
}

// Manager 按用户登记待确认命令。
// 每个用户最多一条待确认记录，新的危险请求直接覆盖旧的。
// 过期记录在任何访问时都视为不存在。
type Manager struct {
	mu      sync.Mutex
	pending map[int64]*Command
	expiry  time.Duration
}

// NewManager 创建确认管理器
func NewManager(expiry time.Duration) *Manager {
	return &Manager{
		pending: make(map[int64]*Command),
		expiry:  expiry,
	}
}

// Put 登记待确认命令（覆盖同用户的旧记录）
func (m *Manager) Put(userID int64, command, rule string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[userID] = &Command{
		UserID:    userID,
		Command:   command,
		Rule:      rule,
		CreatedAt: time.Now(),
	}
}

// Take 确认并取走待执行命令。
// 记录不存在或已过期返回 false，过期记录顺带清除。
func (m *Manager) Take(userID int64) (*Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.pending[userID]
	if !ok {
		return nil, false
	}

	delete(m.pending, userID)

	if time.Since(cmd.CreatedAt) > m.expiry {
		return nil, false
	}
	return cmd, true
}

// Cancel 取消待确认命令，返回是否存在有效记录
func (m *Manager) Cancel(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.pending[userID]
	if !ok {
		return false
	}
	delete(m.pending, userID)

	return time.Since(cmd.CreatedAt) <= m.expiry
}

// Clear 清除指定用户的待确认记录
func (m *Manager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, userID)
}

// sweep 清理所有过期记录
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for userID, cmd := range m.pending {
		if now.Sub(cmd.CreatedAt) > m.expiry {
			delete(m.pending, userID)
		}
	}
}

// StartCleanupTask 启动后台清理任务（每分钟清理一次过期记录）
func (m *Manager) StartCleanupTask() {
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			m.sweep()
		}
	}()
}
