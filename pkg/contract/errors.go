package contract

import "errors"

// 最小错误分类（哨兵）。调用方以 %w 包装后上抛，由 diag.Classify 归类。
var (
	// ErrInvariantViolation: 领域不变量违例（同一元素重复加入 Run / Run 与自身拼接）。
	// 说明分区或扫描存在缺陷，属致命错误。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrStitchInvalid: 分块 head/best/tail 记账与邻接标志矛盾（致命）。
	ErrStitchInvalid = errors.New("stitch bookkeeping invalid")
	// ErrUnsupportedByteOrder: 宿主字节序非小端（环境错误，扫描前检测）。
	ErrUnsupportedByteOrder = errors.New("unsupported byte order: little-endian host required")
	// ErrInputMissing: 输入文件不存在。
	ErrInputMissing = errors.New("input missing")
	// ErrInvalidInput: 参数非法（宽度越界、区间颠倒等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径。
	ErrPathInvalid = errors.New("path invalid")
)
