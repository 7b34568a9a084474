package sshpool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Credentials SSH连接凭据
type Credentials struct {
	Host           string
	Port           int
	Username       string
	PrivateKeyPath string
	Password       string // 私钥不可用时的备选认证
}

// Addr 返回 host:port 形式的地址
func (c Credentials) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CommandResult 命令执行结果
type CommandResult struct {
	ExitStatus int           `json:"exit_status"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	Duration   time.Duration `json:"duration"`
}

// Conn 一条到远程主机的可执行连接
type Conn interface {
	// Run 在远程主机上执行命令，超时由ctx控制
	Run(ctx context.Context, command string) (*CommandResult, error)
	// ReadFile 通过SFTP读取远程文件
	ReadFile(path string) (string, error)
	// ListDir 通过SFTP列出远程目录
	ListDir(path string) ([]string, error)
	// Probe 存活探测（轻量往返）
	Probe() error
	Close() error
}

// Connector 建立新连接的能力，由连接池持有
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ErrPoolExhausted 连接池内无空闲连接且等待超时
var ErrPoolExhausted = errors.New("连接池已耗尽，等待超时")

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("连接池已关闭")

// ConnectError 建立SSH连接失败
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("SSH连接失败 %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
