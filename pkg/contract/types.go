package contract

import "time"

// State: 扫描所处阶段（用于中断时说明结果完整性）。
type State string

const (
	StatePreprocessing State = "preprocessing"
	StateProcessing    State = "processing"
	StateAggregating   State = "aggregating"
	StateFinalization  State = "finalization"
)

// Completeness 返回中断发生在该阶段时结果的完整性：unavailable|partial|full。
func (s State) Completeness() string {
	switch s {
	case StateProcessing, StateAggregating:
		return "partial"
	case StateFinalization:
		return "full"
	default:
		return "unavailable"
	}
}

// Report: 单次扫描的结果报告。
// Partial 为 true 表示扫描被取消，Result 来自不拼接聚合（保守的部分结果）。
type Report struct {
	ID           string    `json:"id"`
	Input        string    `json:"input"`
	SizeBytes    int64     `json:"size_bytes"`
	ElementWidth int       `json:"element_width"`
	Threads      int       `json:"threads"`
	Accelerated  bool      `json:"accelerated"`
	Stitched     bool      `json:"stitched"`
	Partial      bool      `json:"partial"`
	State        State     `json:"state"`
	Result       Run       `json:"result"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
}
