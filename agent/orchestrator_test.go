package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvioiatech/UmbraSIL/ai"
	"github.com/silvioiatech/UmbraSIL/pending"
	"github.com/silvioiatech/UmbraSIL/sshpool"
)

// fakeConn 测试用远程连接
type fakeConn struct {
	mu       sync.Mutex
	commands []string
	result   *sshpool.CommandResult
	runErr   error
	fileData string
	dirData  []string
}

func (c *fakeConn) Run(ctx context.Context, command string) (*sshpool.CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, command)
	if c.runErr != nil {
		return nil, c.runErr
	}
	if c.result != nil {
		return c.result, nil
	}
	return &sshpool.CommandResult{ExitStatus: 0, Stdout: "ok", Duration: 10 * time.Millisecond}, nil
}

func (c *fakeConn) ReadFile(path string) (string, error)  { return c.fileData, nil }
func (c *fakeConn) ListDir(path string) ([]string, error) { return c.dirData, nil }
func (c *fakeConn) Probe() error                          { return nil }
func (c *fakeConn) Close() error                          { return nil }

func (c *fakeConn) ranCommands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.commands))
	copy(out, c.commands)
	return out
}

// fakeConnector 始终返回同一条连接
type fakeConnector struct {
	conn *fakeConn
}

func (f *fakeConnector) Connect(ctx context.Context) (sshpool.Conn, error) {
	return f.conn, nil
}

// fakeMessenger 记录出站消息
type fakeMessenger struct {
	mu    sync.Mutex
	sends []sentMessage
}

type sentMessage struct {
	userID  int64
	text    string
	actions []Action
}

func (m *fakeMessenger) Send(userID int64, text string, actions []Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sentMessage{userID: userID, text: text, actions: actions})
	return nil
}

func (m *fakeMessenger) last() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sends) == 0 {
		return sentMessage{}
	}
	return m.sends[len(m.sends)-1]
}

func (m *fakeMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func newTestOrchestrator(conn *fakeConn) (*Orchestrator, *fakeMessenger) {
	pool := sshpool.NewPool(&fakeConnector{conn: conn}, 3, time.Minute)
	pipeline := ai.NewPipeline(nil, ai.NewContextStore(20), "")
	pendingMgr := pending.NewManager(time.Minute)
	messenger := &fakeMessenger{}
	o := NewOrchestrator(pool, pipeline, pendingMgr, messenger, nil, Options{
		AcquireTimeout: time.Second,
		ExecuteTimeout: time.Second,
	})
	return o, messenger
}

func TestSafeCommandExecutesWithoutPrompt(t *testing.T) {
	conn := &fakeConn{result: &sshpool.CommandResult{Stdout: "Filesystem ...", Duration: 5 * time.Millisecond}}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "df -h")

	require.Equal(t, []string{"df -h"}, conn.ranCommands())
	reply := messenger.last()
	assert.Contains(t, reply.text, "执行完成")
	assert.Empty(t, reply.actions, "安全命令不带确认按钮")
}

func TestDestructiveCommandRequiresConfirm(t *testing.T) {
	conn := &fakeConn{}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "rm -rf /var/www")

	// 没有确认前绝不执行
	assert.Empty(t, conn.ranCommands())
	reply := messenger.last()
	assert.Contains(t, reply.text, "危险命令")
	assert.Equal(t, []Action{ActionConfirm, ActionCancel}, reply.actions)
}

func TestConfirmExecutesOnce(t *testing.T) {
	conn := &fakeConn{}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "rm -rf /var/www")
	o.HandleAction(context.Background(), 1, ActionConfirm)

	require.Equal(t, []string{"rm -rf /var/www"}, conn.ranCommands())

	// 重复确认不再执行
	o.HandleAction(context.Background(), 1, ActionConfirm)
	assert.Len(t, conn.ranCommands(), 1, "确认只能消费一次")
	assert.Contains(t, messenger.last().text, "没有待确认的命令")
}

func TestCancelNeverExecutes(t *testing.T) {
	conn := &fakeConn{}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "reboot")
	o.HandleAction(context.Background(), 1, ActionCancel)

	assert.Empty(t, conn.ranCommands())
	assert.Contains(t, messenger.last().text, "已取消")

	// 取消后确认也无效
	o.HandleAction(context.Background(), 1, ActionConfirm)
	assert.Empty(t, conn.ranCommands())
}

func TestNewDestructiveOverwritesPending(t *testing.T) {
	conn := &fakeConn{}
	o, _ := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "rm -rf /old")
	o.HandleMessage(context.Background(), 1, "rm -rf /new")
	o.HandleAction(context.Background(), 1, ActionConfirm)

	require.Equal(t, []string{"rm -rf /new"}, conn.ranCommands(), "确认执行的是最新登记的命令")
}

func TestChatGoesThroughPipeline(t *testing.T) {
	conn := &fakeConn{}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "hello")

	assert.Empty(t, conn.ranCommands(), "聊天消息不触发命令执行")
	assert.NotEmpty(t, messenger.last().text)
}

func TestVpsQueryRunsMappedCommand(t *testing.T) {
	conn := &fakeConn{result: &sshpool.CommandResult{Stdout: "Mem: ...", Duration: time.Millisecond}}
	o, _ := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "how much memory is left?")

	require.Equal(t, []string{"free -m"}, conn.ranCommands())
}

func TestNonZeroExitReported(t *testing.T) {
	conn := &fakeConn{result: &sshpool.CommandResult{
		ExitStatus: 2,
		Stderr:     "ls: cannot access '/nope': No such file or directory",
		Duration:   time.Millisecond,
	}}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "ls /nope")

	reply := messenger.last()
	assert.Contains(t, reply.text, "退出码 2")
	assert.Contains(t, reply.text, "No such file")
}

func TestRunErrorOffersRetry(t *testing.T) {
	conn := &fakeConn{runErr: errors.New("connection lost")}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "uptime")

	reply := messenger.last()
	assert.Contains(t, reply.text, "失败")
	assert.Equal(t, []Action{ActionRetry}, reply.actions)
	// 内部错误细节不外泄
	assert.NotContains(t, reply.text, "connection lost")
}

func TestRetryReissuesFailedCommand(t *testing.T) {
	conn := &fakeConn{runErr: errors.New("connection lost")}
	o, _ := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "uptime")
	require.Len(t, conn.ranCommands(), 1)

	// 故障恢复后重试
	conn.mu.Lock()
	conn.runErr = nil
	conn.mu.Unlock()
	o.HandleAction(context.Background(), 1, ActionRetry)

	assert.Equal(t, []string{"uptime", "uptime"}, conn.ranCommands())
}

func TestClearResetsContextAndPending(t *testing.T) {
	conn := &fakeConn{}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "rm -rf /var/www")
	o.HandleMessage(context.Background(), 1, "/clear")

	assert.Contains(t, messenger.last().text, "已清空")

	// 清空后待确认命令一并失效
	o.HandleAction(context.Background(), 1, ActionConfirm)
	assert.Empty(t, conn.ranCommands())
}

func TestFileOpReadsFile(t *testing.T) {
	conn := &fakeConn{fileData: "Aug 25 10:00:00 host sshd[1]: ..."}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "show file /var/log/auth.log")

	assert.Empty(t, conn.ranCommands(), "文件读取走SFTP而不是命令执行")
	reply := messenger.last()
	assert.Contains(t, reply.text, "/var/log/auth.log")
	assert.Contains(t, reply.text, "sshd")
}

func TestFileOpListsDirectory(t *testing.T) {
	conn := &fakeConn{dirData: []string{"nginx/", "syslog", "auth.log"}}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "list directory /var/log/")

	reply := messenger.last()
	assert.Contains(t, reply.text, "nginx/")
	assert.Contains(t, reply.text, "auth.log")
}

func TestEmptyMessageIgnored(t *testing.T) {
	conn := &fakeConn{}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "   ")

	assert.Zero(t, messenger.count())
	assert.Empty(t, conn.ranCommands())
}

func TestPendingIsolatedPerUser(t *testing.T) {
	conn := &fakeConn{}
	o, _ := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "rm -rf /a")
	o.HandleMessage(context.Background(), 2, "rm -rf /b")

	o.HandleAction(context.Background(), 1, ActionConfirm)
	require.Equal(t, []string{"rm -rf /a"}, conn.ranCommands())

	o.HandleAction(context.Background(), 2, ActionConfirm)
	assert.Equal(t, []string{"rm -rf /a", "rm -rf /b"}, conn.ranCommands())
}

func TestOutputTruncated(t *testing.T) {
	long := strings.Repeat("x", maxOutputChars+500)
	conn := &fakeConn{result: &sshpool.CommandResult{Stdout: long, Duration: time.Millisecond}}
	o, messenger := newTestOrchestrator(conn)

	o.HandleMessage(context.Background(), 1, "cat /var/log/big.log")

	reply := messenger.last()
	assert.Less(t, len(reply.text), len(long))
	assert.Contains(t, reply.text, "输出已截断")
}
