package contract

import (
	"path"
	"strings"
)

// NormalizeInput 规范化输入路径，使报告中的 Input 跨平台稳定。
// 规则：反斜杠统一为正斜杠；清理多余分隔符与 ./..；不做隐式绝对化。
func NormalizeInput(p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}
