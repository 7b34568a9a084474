package ai

import "context"

// Message 对话消息
type Message struct {
	Role    string `json:"role"` // system / user / assistant
	Content string `json:"content"`
}

// Provider AI补全能力，回退链中的一环
type Provider interface {
	Name() string
	// ChatComplete 单次阻塞式补全，超时由ctx控制
	ChatComplete(ctx context.Context, history []Message) (string, error)
}
