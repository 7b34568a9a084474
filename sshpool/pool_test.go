package sshpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn 测试用连接
type fakeConn struct {
	mu       sync.Mutex
	id       int
	closed   bool
	probeErr error
}

func (c *fakeConn) Run(ctx context.Context, command string) (*CommandResult, error) {
	return &CommandResult{Stdout: "ok"}, nil
}

func (c *fakeConn) ReadFile(path string) (string, error)  { return "", nil }
func (c *fakeConn) ListDir(path string) ([]string, error) { return nil, nil }

func (c *fakeConn) Probe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probeErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeConnector 测试用连接工厂
type fakeConnector struct {
	mu      sync.Mutex
	dials   int
	dialErr error
	conns   []*fakeConn
}

func (f *fakeConnector) Connect(ctx context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.dialErr != nil {
		return nil, &ConnectError{Addr: "test:22", Err: f.dialErr}
	}
	conn := &fakeConn{id: f.dials}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeConnector) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func TestAcquireAndReuse(t *testing.T) {
	connector := &fakeConnector{}
	pool := NewPool(connector, 3, time.Minute)
	defer pool.Close()

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(conn, true)

	// 健康归还后复用同一条连接，不再建连
	conn2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn, conn2)
	assert.Equal(t, 1, connector.dialCount())
	pool.Release(conn2, true)
}

// 同一连接绝不同时出借给两个请求
func TestNoDoubleLease(t *testing.T) {
	connector := &fakeConnector{}
	pool := NewPool(connector, 3, time.Minute)
	defer pool.Close()

	c1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, c1, c2)

	pool.Release(c1, true)
	pool.Release(c2, true)
}

func TestAcquireExhausted(t *testing.T) {
	connector := &fakeConnector{}
	pool := NewPool(connector, 1, time.Minute)
	defer pool.Close()

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	// 唯一槽位被占用，第二个请求等待超时
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	pool.Release(conn, true)
}

// 池容量为1时两个顺序请求都能完成（归还即交接）
func TestSequentialHandoff(t *testing.T) {
	connector := &fakeConnector{}
	pool := NewPool(connector, 1, time.Minute)
	defer pool.Close()

	first, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan Conn, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		conn, err := pool.Acquire(ctx)
		if err != nil {
			close(done)
			return
		}
		done <- conn
	}()

	time.Sleep(20 * time.Millisecond)
	pool.Release(first, true)

	conn, ok := <-done
	require.True(t, ok, "归还后等待中的请求应拿到连接")
	pool.Release(conn, true)
}

func TestUnhealthyReleaseDiscards(t *testing.T) {
	connector := &fakeConnector{}
	pool := NewPool(connector, 3, time.Minute)
	defer pool.Close()

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	pool.Release(conn, false)
	assert.True(t, connector.conns[0].isClosed(), "不健康的连接应被销毁")

	// 下次获取必须建立新连接
	conn2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, conn, conn2)
	assert.Equal(t, 2, connector.dialCount())
	pool.Release(conn2, true)
}

// 空闲连接探测失败时销毁并重连一次
func TestProbeFailureReconnects(t *testing.T) {
	connector := &fakeConnector{}
	pool := NewPool(connector, 3, time.Minute)
	defer pool.Close()

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(conn, true)

	// 模拟空闲期间连接断掉
	connector.conns[0].mu.Lock()
	connector.conns[0].probeErr = errors.New("连接已断开")
	connector.conns[0].mu.Unlock()

	conn2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, conn, conn2)
	assert.True(t, connector.conns[0].isClosed())
	assert.Equal(t, 2, connector.dialCount())
	pool.Release(conn2, true)
}

func TestStaleIdleDiscarded(t *testing.T) {
	connector := &fakeConnector{}
	pool := NewPool(connector, 3, 20*time.Millisecond)
	defer pool.Close()

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(conn, true)

	time.Sleep(50 * time.Millisecond)

	conn2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, conn, conn2, "超过空闲期限的连接不复用")
	assert.True(t, connector.conns[0].isClosed())
	pool.Release(conn2, true)
}

func TestConnectErrorSurfaced(t *testing.T) {
	connector := &fakeConnector{dialErr: errors.New("认证失败")}
	pool := NewPool(connector, 2, time.Minute)
	defer pool.Close()

	_, err := pool.Acquire(context.Background())
	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)

	// 建连失败不能吃掉槽位
	stats := pool.Stats()
	assert.Zero(t, stats.InUse)
}

func TestStats(t *testing.T) {
	connector := &fakeConnector{}
	pool := NewPool(connector, 3, time.Minute)
	defer pool.Close()

	stats := pool.Stats()
	assert.Equal(t, 3, stats.MaxSessions)
	assert.Zero(t, stats.InUse)
	assert.Zero(t, stats.Idle)

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	stats = pool.Stats()
	assert.Equal(t, 1, stats.InUse)

	pool.Release(conn, true)
	stats = pool.Stats()
	assert.Zero(t, stats.InUse)
	assert.Equal(t, 1, stats.Idle)
}

func TestAcquireAfterClose(t *testing.T) {
	connector := &fakeConnector{}
	pool := NewPool(connector, 2, time.Minute)

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(conn, true)

	pool.Close()
	assert.True(t, connector.conns[0].isClosed(), "关闭时销毁空闲连接")

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}
