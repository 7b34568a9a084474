package risk

import "regexp"

// Level 命令风险级别
type Level int

const (
	Safe Level = iota
	Destructive
)

func (l Level) String() string {
	if l == Destructive {
		return "destructive"
	}
	return "safe"
}

// rule 风险匹配规则，按声明顺序匹配，先命中先生效
type rule struct {
	name    string
	pattern *regexp.Regexp
}

// 危险命令规则表（黑名单）。
// 黑名单必然漏判，二次确认是兜底防线，这里只负责第一道。
var rules = []rule{
	{"删除文件", regexp.MustCompile(`(^|[\s;&|])rm(\s|$)`)},
	{"格式化磁盘", regexp.MustCompile(`(^|[\s;&|])(mkfs|fdisk|parted)\b`)},
	{"写入块设备", regexp.MustCompile(`(^|[\s;&|])dd\s.*\bof=/dev/`)},
	{"关机或重启", regexp.MustCompile(`(^|[\s;&|])(shutdown|reboot|poweroff|halt)\b|init\s+0`)},
	{"终止进程", regexp.MustCompile(`(^|[\s;&|])(kill|killall|pkill)\b`)},
	{"提权执行危险操作", regexp.MustCompile(`(^|[\s;&|])sudo\s.*\b(rm|dd|mkfs|chmod|chown|mv|systemctl)\b`)},
	{"重定向写入系统目录", regexp.MustCompile(`>\s*/(etc|boot|usr|var|dev|sys)/`)},
	{"停止系统服务", regexp.MustCompile(`(^|[\s;&|])systemctl\s+(stop|disable|mask)\b`)},
	{"删除或停止容器", regexp.MustCompile(`(^|[\s;&|])docker\s+(rm|rmi|stop|kill)\b|docker\s+system\s+prune`)},
	{"清空文件", regexp.MustCompile(`(^|[\s;&|])truncate\s|(^|[\s;&|]):\s*>\s*\S`)},
	{"递归修改权限", regexp.MustCompile(`(^|[\s;&|])(chmod|chown)\s+-[a-zA-Z]*R`)},
}

// Classify 判定命令风险级别，返回级别与命中的规则说明。
// 纯函数，相同输入必得相同输出。
func Classify(command string) (Level, string) {
	for _, r := range rules {
		if r.pattern.MatchString(command) {
			return Destructive, r.name
		}
	}
	return Safe, ""
}
