package sshpool

import (
	"context"
	"log"
	"sync"
	"time"
)

// Pool 有界SSH连接池，所有会话指向同一台远程主机。
// 租借中的连接占用一个槽位；空闲连接在下次出借前做存活探测，
// 探测失败的连接会被销毁并在同一超时预算内补建一次。
type Pool struct {
	connector Connector
	maxIdle   time.Duration

	slots chan struct{} // 容量即最大并发会话数

	mu     sync.Mutex
	idle   []*poolEntry
	closed bool
}

// poolEntry 空闲连接及其上次归还时间
type poolEntry struct {
	conn     Conn
	lastUsed time.Time
}

// Stats 连接池状态快照
type Stats struct {
	MaxSessions int `json:"max_sessions"`
	InUse       int `json:"in_use"`
	Idle        int `json:"idle"`
}

// NewPool 创建连接池
func NewPool(connector Connector, maxSessions int, maxIdle time.Duration) *Pool {
	if maxSessions <= 0 {
		maxSessions = 3
	}
	return &Pool{
		connector: connector,
		maxIdle:   maxIdle,
		slots:     make(chan struct{}, maxSessions),
	}
}

// Acquire 获取一条连接，阻塞直到有槽位或ctx到期。
// 槽位等待超时返回 ErrPoolExhausted；建连失败返回 *ConnectError。
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrPoolExhausted
	}

	// 优先复用空闲连接
	if conn, ok := p.takeIdle(); ok {
		return conn, nil
	}

	conn, err := p.connector.Connect(ctx)
	if err != nil {
		p.freeSlot()
		return nil, err
	}
	return conn, nil
}

// takeIdle 取出一条可用的空闲连接。
// 过期的直接销毁；探测失败的销毁后不再尝试下一条空闲连接，
// 由调用方改走新建路径（即每次Acquire最多重连一次）。
func (p *Pool) takeIdle() (Conn, bool) {
	for {
		p.mu.Lock()
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			return nil, false
		}
		entry := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if p.maxIdle > 0 && time.Since(entry.lastUsed) > p.maxIdle {
			entry.conn.Close()
			continue
		}

		if err := entry.conn.Probe(); err != nil {
			log.Printf("⚠️ 空闲连接探测失败，销毁重建: %v", err)
			entry.conn.Close()
			return nil, false
		}
		return entry.conn, true
	}
}

// Release 归还连接。healthy=false 时销毁底层连接而不是回收，
// 避免传输层已损坏的连接污染池子。
func (p *Pool) Release(conn Conn, healthy bool) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	if p.closed || !healthy {
		p.mu.Unlock()
		conn.Close()
		p.freeSlot()
		return
	}
	p.idle = append(p.idle, &poolEntry{conn: conn, lastUsed: time.Now()})
	p.mu.Unlock()

	p.freeSlot()
}

// freeSlot 释放一个槽位
func (p *Pool) freeSlot() {
	select {
	case <-p.slots:
	default:
		// 槽位计数异常说明Release被重复调用，忽略
	}
}

// Stats 返回池状态快照
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		MaxSessions: cap(p.slots),
		InUse:       len(p.slots),
		Idle:        len(p.idle),
	}
}

// Close 关闭连接池并销毁所有空闲连接
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, entry := range idle {
		entry.conn.Close()
	}
}
