package ai

import "sync"

// ContextStore 按用户保存对话上下文，容量固定，
// 超出后淘汰最旧的消息（滑动窗口，不报错）。
type ContextStore struct {
	mu       sync.Mutex
	contexts map[int64][]Message
	maxLen   int
}

// NewContextStore 创建上下文存储
func NewContextStore(maxLen int) *ContextStore {
	if maxLen <= 0 {
		maxLen = 20
	}
	return &ContextStore{
		contexts: make(map[int64][]Message),
		maxLen:   maxLen,
	}
}

// Append 追加一条消息，超出容量时淘汰最旧的
func (s *ContextStore) Append(userID int64, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.contexts[userID], Message{Role: role, Content: content})
	if len(msgs) > s.maxLen {
		msgs = msgs[len(msgs)-s.maxLen:]
	}
	s.contexts[userID] = msgs
}

// History 返回用户上下文的副本
func (s *ContextStore) History(userID int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.contexts[userID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Len 返回用户上下文长度
func (s *ContextStore) Len(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts[userID])
}

// Clear 清空用户上下文
func (s *ContextStore) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, userID)
}
