package ai

import (
	"context"
	"log"
	"time"
)

// ChainEntry 回退链中的一个供应商及其独立超时
type ChainEntry struct {
	Provider Provider
	Timeout  time.Duration
}

// Pipeline 按固定顺序尝试供应商的补全流水线。
// 某个供应商超时或出错就换下一个，同一供应商不重试。
// 链尾是规则应答器时流水线必有回复。
type Pipeline struct {
	chain        []ChainEntry
	contexts     *ContextStore
	systemPrompt string
}

// NewPipeline 创建补全流水线，规则应答器自动挂在链尾
func NewPipeline(chain []ChainEntry, contexts *ContextStore, systemPrompt string) *Pipeline {
	chain = append(chain, ChainEntry{Provider: NewRuleProvider(), Timeout: time.Second})
	return &Pipeline{
		chain:        chain,
		contexts:     contexts,
		systemPrompt: systemPrompt,
	}
}

// Contexts 返回上下文存储（供清空操作使用）
func (p *Pipeline) Contexts() *ContextStore {
	return p.contexts
}

// Complete 生成一条回复。
// 先把用户消息记入上下文，成功后把助手回复也记入，均受容量限制。
func (p *Pipeline) Complete(ctx context.Context, userID int64, text string) string {
	p.contexts.Append(userID, "user", text)

	history := p.contexts.History(userID)
	if p.systemPrompt != "" {
		history = append([]Message{{Role: "system", Content: p.systemPrompt}}, history...)
	}

	for _, entry := range p.chain {
		callCtx, cancel := context.WithTimeout(ctx, entry.Timeout)
		reply, err := entry.Provider.ChatComplete(callCtx, history)
		cancel()

		if err != nil {
			log.Printf("⚠️ 供应商 %s 失败，切换下一个: %v", entry.Provider.Name(), err)
			continue
		}
		if reply == "" {
			log.Printf("⚠️ 供应商 %s 返回空回复，切换下一个", entry.Provider.Name())
			continue
		}

		p.contexts.Append(userID, "assistant", reply)
		return reply
	}

	// 链尾规则应答器不会失败，正常情况下到不了这里
	return defaultReply
}
