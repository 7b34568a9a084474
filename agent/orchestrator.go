package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/silvioiatech/UmbraSIL/ai"
	"github.com/silvioiatech/UmbraSIL/intent"
	"github.com/silvioiatech/UmbraSIL/models"
	"github.com/silvioiatech/UmbraSIL/pending"
	"github.com/silvioiatech/UmbraSIL/risk"
	"github.com/silvioiatech/UmbraSIL/sshpool"
)

// Action 回复可附带的操作按钮
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
	ActionRetry   Action = "retry"
)

// Messenger 出站消息能力，由外层传输实现（渲染按钮并回报点击）
type Messenger interface {
	Send(userID int64, text string, actions []Action) error
}

// Options 编排器运行参数
type Options struct {
	AcquireTimeout time.Duration // 连接池获取超时
	ExecuteTimeout time.Duration // 命令执行超时
}

// 回复中输出内容的截断上限
const maxOutputChars = 3000

// Orchestrator 消息编排器：解析意图、风险分级、确认流转、执行命令。
// 同一用户的消息串行处理，不同用户互不阻塞。
type Orchestrator struct {
	pool      *sshpool.Pool
	pipeline  *ai.Pipeline
	pending   *pending.Manager
	messenger Messenger
	history   *models.CommandHistoryRepository // 可为nil（未配置数据库）
	opts      Options

	mu         sync.Mutex
	userLocks  map[int64]*sync.Mutex
	lastFailed map[int64]string // 供retry按钮重发
}

// NewOrchestrator 创建编排器
func NewOrchestrator(pool *sshpool.Pool, pipeline *ai.Pipeline, pendingMgr *pending.Manager, messenger Messenger, history *models.CommandHistoryRepository, opts Options) *Orchestrator {
	if opts.AcquireTimeout == 0 {
		opts.AcquireTimeout = 10 * time.Second
	}
	if opts.ExecuteTimeout == 0 {
		opts.ExecuteTimeout = 30 * time.Second
	}
	return &Orchestrator{
		pool:       pool,
		pipeline:   pipeline,
		pending:    pendingMgr,
		messenger:  messenger,
		history:    history,
		opts:       opts,
		userLocks:  make(map[int64]*sync.Mutex),
		lastFailed: make(map[int64]string),
	}
}

// HandleMessage 处理一条入站消息
func (o *Orchestrator) HandleMessage(ctx context.Context, userID int64, text string) {
	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	// 上下文重置指令优先于意图解析
	if trimmed == "/clear" || trimmed == "清空上下文" {
		o.pipeline.Contexts().Clear(userID)
		o.pending.Clear(userID)
		o.send(userID, "🧹 对话上下文已清空", nil)
		return
	}

	it := intent.Analyze(trimmed)
	log.Printf("📨 用户 %d 消息意图: %s", userID, it.Kind)

	switch it.Kind {
	case intent.Chat:
		reply := o.pipeline.Complete(ctx, userID, trimmed)
		o.send(userID, reply, nil)
	case intent.FileOp:
		o.handleFileOp(ctx, userID, it.Path)
	default:
		o.handleCommand(ctx, userID, it.Command)
	}
}

// HandleAction 处理按钮回报（confirm/cancel/retry）
func (o *Orchestrator) HandleAction(ctx context.Context, userID int64, action Action) {
	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	switch action {
	case ActionConfirm:
		cmd, ok := o.pending.Take(userID)
		if !ok {
			o.send(userID, "ℹ️ 没有待确认的命令（可能已过期）", nil)
			return
		}
		o.execute(ctx, userID, cmd.Command, true)
	case ActionCancel:
		if o.pending.Cancel(userID) {
			o.send(userID, "🚫 已取消，命令不会执行", nil)
		} else {
			o.send(userID, "ℹ️ 没有待确认的命令", nil)
		}
	case ActionRetry:
		o.mu.Lock()
		cmd, ok := o.lastFailed[userID]
		delete(o.lastFailed, userID)
		o.mu.Unlock()

		if !ok {
			o.send(userID, "ℹ️ 没有可重试的命令，请重新输入", nil)
			return
		}
		// 重试也要重新过一遍风险分级
		o.handleCommand(ctx, userID, cmd)
	default:
		log.Printf("⚠️ 未知操作: %s (用户 %d)", action, userID)
	}
}

// handleCommand 命令入口：安全的直接执行，危险的登记待确认
func (o *Orchestrator) handleCommand(ctx context.Context, userID int64, command string) {
	level, rule := risk.Classify(command)
	if level == risk.Destructive {
		o.pending.Put(userID, command, rule)
		prompt := fmt.Sprintf("⚠️ **检测到危险命令**（%s）\n\n```\n%s\n```\n\n确认要在服务器上执行吗？", rule, command)
		o.send(userID, prompt, []Action{ActionConfirm, ActionCancel})
		return
	}
	o.execute(ctx, userID, command, false)
}

// execute 在远程主机上执行命令并回复结果
func (o *Orchestrator) execute(ctx context.Context, userID int64, command string, confirmed bool) {
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, o.opts.AcquireTimeout)
	conn, err := o.pool.Acquire(acquireCtx)
	cancelAcquire()
	if err != nil {
		log.Printf("❌ 获取连接失败 (用户 %d, 命令 %q): %v", userID, command, err)
		o.rememberFailed(userID, command)
		o.send(userID, acquireErrorReply(err), []Action{ActionRetry})
		return
	}

	runCtx, cancelRun := context.WithTimeout(ctx, o.opts.ExecuteTimeout)
	result, err := conn.Run(runCtx, command)
	cancelRun()
	if err != nil {
		// 传输层错误：销毁连接，不回收
		o.pool.Release(conn, false)
		log.Printf("❌ 命令执行失败 (用户 %d, 命令 %q): %v", userID, command, err)
		o.rememberFailed(userID, command)

		reply := "❌ 命令执行失败，请稍后重试"
		if errors.Is(err, context.DeadlineExceeded) {
			reply = "⏱️ 命令执行超时，已中止。请重新发起"
		}
		o.send(userID, reply, []Action{ActionRetry})
		return
	}

	o.pool.Release(conn, true)
	o.saveHistory(userID, command, result, confirmed)
	o.send(userID, formatResult(result), nil)
}

// handleFileOp 通过SFTP读取远程文件或列出目录
func (o *Orchestrator) handleFileOp(ctx context.Context, userID int64, path string) {
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, o.opts.AcquireTimeout)
	conn, err := o.pool.Acquire(acquireCtx)
	cancelAcquire()
	if err != nil {
		log.Printf("❌ 获取连接失败 (用户 %d, 路径 %q): %v", userID, path, err)
		o.send(userID, acquireErrorReply(err), []Action{ActionRetry})
		return
	}

	if strings.HasSuffix(path, "/") {
		entries, err := conn.ListDir(path)
		// SFTP层的失败不代表连接坏了，照常回收
		o.pool.Release(conn, true)
		if err != nil {
			log.Printf("❌ 读取目录失败 (用户 %d, 路径 %q): %v", userID, path, err)
			o.send(userID, fmt.Sprintf("❌ 无法读取目录 `%s`", path), nil)
			return
		}
		o.send(userID, fmt.Sprintf("📁 **%s**\n```\n%s\n```", path, truncate(strings.Join(entries, "\n"))), nil)
		return
	}

	content, err := conn.ReadFile(path)
	o.pool.Release(conn, true)
	if err != nil {
		log.Printf("❌ 读取文件失败 (用户 %d, 路径 %q): %v", userID, path, err)
		o.send(userID, fmt.Sprintf("❌ 无法读取文件 `%s`", path), nil)
		return
	}
	o.send(userID, fmt.Sprintf("📄 **%s**\n```\n%s\n```", path, truncate(content)), nil)
}

// acquireErrorReply 把池错误翻译成对操作者友好的提示
func acquireErrorReply(err error) string {
	var connErr *sshpool.ConnectError
	switch {
	case errors.Is(err, sshpool.ErrPoolExhausted):
		return "⏳ 所有连接都在忙，请稍后重试"
	case errors.As(err, &connErr):
		return "❌ 无法连接到服务器，请检查主机状态"
	default:
		return "❌ 连接不可用，请稍后重试"
	}
}

// formatResult 格式化命令执行结果
func formatResult(result *sshpool.CommandResult) string {
	var b strings.Builder

	if result.ExitStatus == 0 {
		fmt.Fprintf(&b, "✅ **执行完成** (%.2fs)\n", result.Duration.Seconds())
	} else {
		fmt.Fprintf(&b, "⚠️ **退出码 %d** (%.2fs)\n", result.ExitStatus, result.Duration.Seconds())
	}

	stdout := strings.TrimSpace(result.Stdout)
	if stdout != "" {
		fmt.Fprintf(&b, "```\n%s\n```", truncate(stdout))
	}
	stderr := strings.TrimSpace(result.Stderr)
	if stderr != "" {
		fmt.Fprintf(&b, "\n**stderr:**\n```\n%s\n```", truncate(stderr))
	}
	if stdout == "" && stderr == "" {
		b.WriteString("（无输出）")
	}
	return b.String()
}

// truncate 截断过长的输出
func truncate(s string) string {
	if len(s) <= maxOutputChars {
		return s
	}
	return s[:maxOutputChars] + "\n... (输出已截断)"
}

// saveHistory 写入命令审计记录（未配置数据库时跳过）
func (o *Orchestrator) saveHistory(userID int64, command string, result *sshpool.CommandResult, confirmed bool) {
	if o.history == nil {
		return
	}
	err := o.history.Create(&models.CommandHistory{
		UserID:      userID,
		Command:     command,
		ExitStatus:  result.ExitStatus,
		DurationMS:  result.Duration.Milliseconds(),
		Destructive: confirmed,
	})
	if err != nil {
		log.Printf("⚠️ 保存命令历史失败: %v", err)
	}
}

// rememberFailed 记录最近失败的命令，供retry按钮使用
func (o *Orchestrator) rememberFailed(userID int64, command string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastFailed[userID] = command
}

// send 发送回复，发送失败只记日志
func (o *Orchestrator) send(userID int64, text string, actions []Action) {
	if err := o.messenger.Send(userID, text, actions); err != nil {
		log.Printf("❌ 发送消息失败 (用户 %d): %v", userID, err)
	}
}

// userLock 获取用户级互斥锁（不存在则创建）
func (o *Orchestrator) userLock(userID int64) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		o.userLocks[userID] = lock
	}
	return lock
}
