package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// SSHConfig VPS连接配置
type SSHConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	PrivateKeyPath string `json:"private_key_path"` // 私钥文件路径
	Password       string `json:"password"`         // 私钥不可用时的备选认证
}

// PoolConfig SSH连接池配置
type PoolConfig struct {
	MaxSessions    int `json:"max_sessions"`    // 最大并发会话数
	AcquireTimeout int `json:"acquire_timeout"` // 获取连接超时（秒）
	MaxIdle        int `json:"max_idle"`        // 空闲连接最大存活时间（秒）
}

// ProviderConfig AI供应商配置
type ProviderConfig struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	Timeout int    `json:"timeout"` // 单次请求超时（秒）
}

type Config struct {
	AuthToken  string `json:"auth_token"`
	ServerPort string `json:"server_port"`

	SSH  SSHConfig  `json:"ssh"`
	Pool PoolConfig `json:"pool"`

	ExecuteTimeout int `json:"execute_timeout"` // 命令执行超时（秒）
	ConfirmExpiry  int `json:"confirm_expiry"`  // 危险命令确认有效期（秒）
	ContextMax     int `json:"context_max"`     // 对话上下文最大消息数

	DatabaseDSN string `json:"database_dsn"` // 为空则不持久化命令历史

	SystemPrompt string           `json:"system_prompt"`
	Providers    []ProviderConfig `json:"providers"`
}

var AppConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		return err
	}

	applyDefaults(AppConfig)

	if err := validate(AppConfig); err != nil {
		return err
	}

	log.Println("✓ 配置文件加载成功")
	log.Printf("✓ 目标主机: %s@%s:%d", AppConfig.SSH.Username, AppConfig.SSH.Host, AppConfig.SSH.Port)
	log.Printf("✓ AI供应商: %d 个已配置", len(AppConfig.Providers))
	return nil
}

// applyDefaults 填充默认值
func applyDefaults(c *Config) {
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.Pool.MaxSessions == 0 {
		c.Pool.MaxSessions = 3
	}
	if c.Pool.AcquireTimeout == 0 {
		c.Pool.AcquireTimeout = 10
	}
	if c.Pool.MaxIdle == 0 {
		c.Pool.MaxIdle = 300
	}
	if c.ExecuteTimeout == 0 {
		c.ExecuteTimeout = 30
	}
	if c.ConfirmExpiry == 0 {
		c.ConfirmExpiry = 60
	}
	if c.ContextMax == 0 {
		c.ContextMax = 20
	}
	for i := range c.Providers {
		if c.Providers[i].Timeout == 0 {
			c.Providers[i].Timeout = 30
		}
	}
}

// validate 校验必填项
func validate(c *Config) error {
	if c.AuthToken == "" {
		return fmt.Errorf("配置缺少 auth_token")
	}
	if c.SSH.Host == "" {
		return fmt.Errorf("配置缺少 ssh.host")
	}
	if c.SSH.Username == "" {
		return fmt.Errorf("配置缺少 ssh.username")
	}
	return nil
}

// GetToken 获取认证Token
func GetToken() string {
	if AppConfig != nil {
		return AppConfig.AuthToken
	}
	return ""
}

// GetPort 获取服务器端口
func GetPort() string {
	if AppConfig != nil && AppConfig.ServerPort != "" {
		return AppConfig.ServerPort
	}
	return "8080"
}

// AcquireTimeoutDuration 连接池获取超时
func (c *Config) AcquireTimeoutDuration() time.Duration {
	return time.Duration(c.Pool.AcquireTimeout) * time.Second
}

// ExecuteTimeoutDuration 命令执行超时
func (c *Config) ExecuteTimeoutDuration() time.Duration {
	return time.Duration(c.ExecuteTimeout) * time.Second
}

// ConfirmExpiryDuration 危险命令确认有效期
func (c *Config) ConfirmExpiryDuration() time.Duration {
	return time.Duration(c.ConfirmExpiry) * time.Second
}

// MaxIdleDuration 空闲连接最大存活时间
func (c *Config) MaxIdleDuration() time.Duration {
	return time.Duration(c.Pool.MaxIdle) * time.Second
}
