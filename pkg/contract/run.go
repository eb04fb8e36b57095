package contract

import (
	"fmt"
	"strings"
)

// Run: 严格升序素数链的描述（首/尾值与字节偏移、长度）。
// 约束：
//   - Length == 0 表示空 Run（尚未累积 / 拼接时的分隔符）；
//   - Length == 1 时 First* 与 Last* 相同；
//   - 相等性为五个字段全部相等，直接使用 ==。
type Run struct {
	FirstValue  uint64 `json:"first_value"`
	FirstOffset uint64 `json:"first_offset"`
	LastValue   uint64 `json:"last_value"`
	LastOffset  uint64 `json:"last_offset"`
	Length      uint64 `json:"length"`
}

// IsEmpty 报告是否为空 Run。
func (r Run) IsEmpty() bool { return r.Length == 0 }

// Append 尝试以 (value, offset) 延长链。
// 返回 false 表示不接续（Run 不变）；同一元素重复加入返回 ErrInvariantViolation。
func (r *Run) Append(value, offset uint64) (bool, error) {
	if r.Length == 0 {
		*r = Run{FirstValue: value, FirstOffset: offset, LastValue: value, LastOffset: offset, Length: 1}
		return true, nil
	}
	if value < r.LastValue || (value == r.LastValue && offset != r.LastOffset) {
		return false, nil
	}
	if value == r.LastValue && offset == r.LastOffset {
		return false, fmt.Errorf("%w: element %d@%d appended twice to run {%s}", ErrInvariantViolation, value, offset, r.oneLine())
	}
	r.Length++
	r.LastValue = value
	r.LastOffset = offset
	return true, nil
}

// Concat 将 tail 接在 r 之后。
// tail 为空时返回 false（不吞并 r）；tail 与 r 完全相同返回 ErrInvariantViolation；
// 连接点为同一元素时长度只计一次。
func (r *Run) Concat(tail Run) (bool, error) {
	if tail.Length == 0 {
		return false, nil
	}
	if tail == *r {
		return false, fmt.Errorf("%w: run {%s} concatenated to itself", ErrInvariantViolation, r.oneLine())
	}
	if r.Length == 0 {
		*r = tail
		return true, nil
	}
	if tail.FirstValue < r.LastValue || (tail.FirstValue == r.LastValue && tail.FirstOffset != r.LastOffset) {
		return false, nil
	}
	overlap := uint64(0)
	if tail.FirstValue == r.LastValue && tail.FirstOffset == r.LastOffset {
		overlap = 1
	}
	r.Length += tail.Length - overlap
	r.LastValue = tail.LastValue
	r.LastOffset = tail.LastOffset
	return true, nil
}

// Worse 报告 r 在选择序下是否劣于 best：
// 更长者优先；等长时首值更大者优先；再相等时首偏移更靠前者优先。
func (r Run) Worse(best Run) bool {
	switch {
	case best.Length > r.Length:
		return true
	case best.Length < r.Length:
		return false
	case best.FirstValue > r.FirstValue:
		return true
	case best.FirstValue < r.FirstValue:
		return false
	default:
		return best.FirstOffset < r.FirstOffset
	}
}

// String 以多行文本输出（与结果报告格式一致）。
func (r Run) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "First: %d\n", r.FirstValue)
	fmt.Fprintf(&sb, "FirstOffset: %d\n", r.FirstOffset)
	fmt.Fprintf(&sb, "Last: %d\n", r.LastValue)
	fmt.Fprintf(&sb, "LastOffset: %d\n", r.LastOffset)
	fmt.Fprintf(&sb, "Length: %d", r.Length)
	return sb.String()
}

func (r Run) oneLine() string {
	return fmt.Sprintf("first=%d first_offset=%d last=%d last_offset=%d length=%d",
		r.FirstValue, r.FirstOffset, r.LastValue, r.LastOffset, r.Length)
}
