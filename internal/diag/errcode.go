package diag

import (
	"context"
	"errors"
	"os"
	"time"

	"primescan/pkg/contract"
)

// Code 是最小错误分类代码。
// 用于日志/指标汇总；ExitCode 据此映射进程退出码。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeCancel    Code = "cancel"
	CodeInvariant Code = "invariant"
	CodeStitch    Code = "stitch"
	CodeEnv       Code = "env"
	CodeConfig    Code = "config"
	CodeIO        Code = "io"
)

// 进程退出码。
const (
	ExitOK        = 0
	ExitFault     = 1
	ExitEnv       = 3
	ExitCancelled = 130
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrStitchInvalid) {
		return CodeStitch
	}
	if errors.Is(err, contract.ErrInvariantViolation) {
		return CodeInvariant
	}
	if errors.Is(err, contract.ErrUnsupportedByteOrder) || errors.Is(err, contract.ErrInputMissing) {
		return CodeEnv
	}
	if errors.Is(err, contract.ErrInvalidInput) {
		return CodeConfig
	}
	if errors.Is(err, contract.ErrPathInvalid) {
		return CodeIO
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// ExitCode 将错误映射为退出码：nil→0，取消→130，环境/配置→3，其余→1。
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch Classify(err) {
	case CodeCancel:
		return ExitCancelled
	case CodeEnv, CodeConfig:
		return ExitEnv
	default:
		return ExitFault
	}
}

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
