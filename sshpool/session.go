package sshpool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// 单个文件读取上限，避免把大文件整个拉进内存
const maxFileReadBytes = 256 * 1024

// SSHConnector 按凭据建立SSH连接
type SSHConnector struct {
	creds Credentials
}

// NewSSHConnector 创建连接器
func NewSSHConnector(creds Credentials) *SSHConnector {
	return &SSHConnector{creds: creds}
}

// Connect 建立新的SSH连接
func (c *SSHConnector) Connect(ctx context.Context) (Conn, error) {
	auth, err := buildAuthMethods(c.creds)
	if err != nil {
		return nil, &ConnectError{Addr: c.creds.Addr(), Err: err}
	}

	config := &ssh.ClientConfig{
		User:            c.creds.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
		ClientVersion:   "SSH-2.0-UmbraSIL_Agent",
	}

	client, err := ssh.Dial("tcp", c.creds.Addr(), config)
	if err != nil {
		return nil, &ConnectError{Addr: c.creds.Addr(), Err: err}
	}

	return &Session{
		client:   client,
		host:     c.creds.Host,
		openedAt: time.Now(),
	}, nil
}

// buildAuthMethods 构建认证方式（优先私钥）
func buildAuthMethods(creds Credentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if creds.PrivateKeyPath != "" {
		keyData, err := os.ReadFile(creds.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("读取私钥失败: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("解析私钥失败: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("未配置私钥或密码")
	}
	return methods, nil
}

// Session 一条已认证的SSH连接（含按需创建的SFTP客户端）
type Session struct {
	client   *ssh.Client
	host     string
	openedAt time.Time

	mu         sync.Mutex
	sftpClient *sftp.Client
	closed     bool
}

// Run 在远程主机上执行一条命令
func (s *Session) Run(ctx context.Context, command string) (*CommandResult, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("创建SSH会话失败: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- sess.Run(command)
	}()

	select {
	case <-ctx.Done():
		// 超时或取消：尽力终止远端进程后放弃本次执行
		sess.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("命令执行超时: %w", ctx.Err())
	case err = <-done:
	}

	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		// 非零退出码不是传输错误，照常返回结果
		if exitErr, ok := err.(*ssh.ExitError); ok {
			result.ExitStatus = exitErr.ExitStatus()
			return result, nil
		}
		return nil, fmt.Errorf("命令执行失败: %w", err)
	}

	return result, nil
}

// ReadFile 通过SFTP读取远程文件内容
func (s *Session) ReadFile(path string) (string, error) {
	client, err := s.ensureSFTP()
	if err != nil {
		return "", err
	}

	f, err := client.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开远程文件失败 %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileReadBytes))
	if err != nil {
		return "", fmt.Errorf("读取远程文件失败 %s: %w", path, err)
	}
	return string(data), nil
}

// ListDir 通过SFTP列出远程目录
func (s *Session) ListDir(path string) ([]string, error) {
	client, err := s.ensureSFTP()
	if err != nil {
		return nil, err
	}

	entries, err := client.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("读取远程目录失败 %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ensureSFTP 按需创建SFTP客户端（复用SSH连接）
func (s *Session) ensureSFTP() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("连接已关闭")
	}
	if s.sftpClient != nil {
		return s.sftpClient, nil
	}

	client, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("创建SFTP客户端失败: %w", err)
	}
	s.sftpClient = client
	return client, nil
}

// Probe 发送keepalive请求验证连接存活
func (s *Session) Probe() error {
	_, _, err := s.client.Conn.SendRequest("keepalive@openssh.com", true, nil)
	if err != nil {
		return fmt.Errorf("存活探测失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.sftpClient != nil {
		s.sftpClient.Close()
	}
	return s.client.Close()
}
