package intent

import (
	"regexp"
	"strings"
)

// Kind 消息意图类别
type Kind int

const (
	Chat Kind = iota // 兜底：普通对话
	DirectShell
	VpsQuery
	DockerQuery
	FileOp
)

func (k Kind) String() string {
	switch k {
	case DirectShell:
		return "direct_shell"
	case VpsQuery:
		return "vps_query"
	case DockerQuery:
		return "docker_query"
	case FileOp:
		return "file_op"
	default:
		return "chat"
	}
}

// Intent 一条消息解析出的意图，解析后不可变
type Intent struct {
	Kind    Kind
	Command string // DirectShell/VpsQuery/DockerQuery: 待执行命令
	Query   string // VpsQuery: 查询类别（disk/memory/cpu/...）
	Path    string // FileOp: 目标路径
	Text    string // 原始消息
}

// 识别为直接命令的常见二进制名
var knownBinaries = map[string]bool{
	"ls": true, "cat": true, "cd": true, "pwd": true, "df": true, "du": true,
	"free": true, "ps": true, "top": true, "htop": true, "uptime": true,
	"whoami": true, "uname": true, "hostname": true, "date": true,
	"grep": true, "find": true, "tail": true, "head": true, "wc": true,
	"docker": true, "systemctl": true, "journalctl": true, "service": true,
	"netstat": true, "ss": true, "ip": true, "ping": true, "curl": true, "wget": true,
	"apt": true, "apt-get": true, "yum": true, "dnf": true,
	"rm": true, "mv": true, "cp": true, "mkdir": true, "touch": true, "chmod": true, "chown": true,
	"kill": true, "killall": true, "pkill": true, "reboot": true, "shutdown": true,
	"sudo": true, "sh": true, "bash": true, "echo": true, "env": true, "export": true,
	"tar": true, "unzip": true, "git": true, "crontab": true, "dd": true,
}

var shellOperators = []string{"|", "&&", "||", ";", ">", ">>", "<", "$("}

// vpsRule 查询短语到命令的映射，先声明先匹配
type vpsRule struct {
	query    string
	keywords []string
	command  string
}

// 查询命令取自VPS监控的常用探测命令
var vpsRules = []vpsRule{
	{"disk", []string{"disk space", "disk usage", "storage", "磁盘", "硬盘"}, "df -h"},
	{"memory", []string{"memory", "ram", "内存"}, "free -m"},
	{"cpu", []string{"cpu", "processor", "load average", "负载"}, "top -bn1 | head -20"},
	{"process", []string{"process", "running programs", "进程"}, "ps aux --sort=-%cpu | head -15"},
	{"uptime", []string{"uptime", "how long", "运行时间", "开机多久"}, "uptime"},
	{"network", []string{"network", "port", "connections", "网络", "端口"}, "ss -tunlp | head -20"},
}

var dockerKeywords = []string{"docker", "container", "容器", "镜像"}

var fileKeywords = []string{"show file", "read file", "view file", "open file", "list directory", "看看文件", "读取文件", "查看文件", "列出目录"}

// 消息里出现的绝对路径
var pathPattern = regexp.MustCompile(`(/[\w.@+-]+(?:/[\w.@+-]+)*/?)`)

// 未指明路径时的默认查看目标
const defaultFilePath = "/var/log/syslog"

// Analyze 解析一条消息的意图。全函数：任何输入都有结果，兜底为Chat。
// 优先级：直接命令 > VPS查询 > Docker > 文件操作 > 对话，
// 直接命令绝不能被当成聊天处理。
func Analyze(text string) Intent {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if looksLikeShellCommand(trimmed) {
		return Intent{Kind: DirectShell, Command: trimmed, Text: text}
	}

	for _, rule := range vpsRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return Intent{Kind: VpsQuery, Query: rule.query, Command: rule.command, Text: text}
			}
		}
	}

	for _, kw := range dockerKeywords {
		if strings.Contains(lower, kw) {
			return Intent{Kind: DockerQuery, Command: "docker ps -a", Text: text}
		}
	}

	for _, kw := range fileKeywords {
		if strings.Contains(lower, kw) {
			path := defaultFilePath
			if m := pathPattern.FindString(trimmed); m != "" {
				path = m
			}
			return Intent{Kind: FileOp, Path: path, Text: text}
		}
	}

	return Intent{Kind: Chat, Text: text}
}

// looksLikeShellCommand 判断文本是否为直接输入的shell命令
func looksLikeShellCommand(text string) bool {
	if text == "" {
		return false
	}

	// 以路径形式开头的可执行调用
	if strings.HasPrefix(text, "./") || strings.HasPrefix(text, "/") {
		return true
	}

	fields := strings.Fields(text)
	if len(fields) > 0 && knownBinaries[fields[0]] {
		return true
	}

	for _, op := range shellOperators {
		if strings.Contains(text, op) {
			return true
		}
	}
	return false
}
