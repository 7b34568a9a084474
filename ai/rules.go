package ai

import (
	"context"
	"strings"
)

// RuleProvider 规则应答器，回退链的终点。
// 永不失败、永不超时，保证流水线总能给出回复。
type RuleProvider struct{}

// NewRuleProvider 创建规则应答器
func NewRuleProvider() *RuleProvider {
	return &RuleProvider{}
}

func (p *RuleProvider) Name() string {
	return "rules"
}

// ruleReply 关键词到回复的映射，先声明先匹配
type ruleReply struct {
	keywords []string
	reply    string
}

var ruleReplies = []ruleReply{
	{[]string{"help", "帮助", "怎么用"},
		"🤖 我可以帮你管理VPS：\n• 直接输入shell命令立即执行\n• 问我「check disk space」「内存占用」等查看系统状态\n• 问docker相关问题查看容器\n• 「查看文件 /path/to/file」读取远程文件\n危险命令需要二次确认。"},
	{[]string{"hello", "hi", "你好"},
		"👋 你好！我是VPS管理助手，输入命令或直接提问即可。发送「help」查看用法。"},
	{[]string{"status", "状态", "怎么样"},
		"📊 想了解服务器状态的话，试试问我「check disk space」「memory usage」或「uptime」。"},
	{[]string{"thanks", "thank", "谢谢"},
		"不客气！还有什么需要随时说。"},
}

const defaultReply = "🤖 我没理解这句话。可以直接输入shell命令，或者问我磁盘、内存、CPU、容器等系统状态；发送「help」查看完整用法。"

// ChatComplete 按关键词规则生成回复，输入为空历史时也有兜底回复
func (p *RuleProvider) ChatComplete(ctx context.Context, history []Message) (string, error) {
	// 取最后一条用户消息
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			last = history[i].Content
			break
		}
	}

	lower := strings.ToLower(last)
	for _, r := range ruleReplies {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.reply, nil
			}
		}
	}
	return defaultReply, nil
}
