package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"primescan/pkg/contract"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认 stderr）。
// - TTY: 单行 \r 覆盖；非 TTY: 每跨过 10% 打印一行。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	input    string
	threads  int
	runStart time.Time

	phase      string
	phaseStart time.Time
	lastStep   int

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return t
}

// RunStart: 记录运行上下文（输入、大小、线程数）。
func (t *Terminal) RunStart(input string, sizeBytes int64, threads int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.input = shortenBase(input, 48)
	t.threads = threads
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] %s | %s | threads=%d", safe(t.input), humanize.IBytes(uint64(max64(sizeBytes, 0))), threads))
	t.println("Ctrl+C to abort with partial result.")
}

// PhaseStart: 进入新阶段（预处理/初始化表/扫描/聚合），进度归零。
func (t *Terminal) PhaseStart(name string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.phase = name
	t.phaseStart = time.Now()
	t.lastStep = 0
	t.lastFlush = time.Time{}
	t.println(fmt.Sprintf("[%s] ...", name))
}

// Progress: 当前阶段进度（0–100）。TTY 下 100ms 节流。
func (t *Terminal) Progress(percent float64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if !t.isTTY {
		step := int(percent) / 10
		if step > t.lastStep {
			t.lastStep = step
			t.println(fmt.Sprintf("[%s] %d%%", t.phase, step*10))
		}
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[%s] %5.1f%% | threads %d | 用时 %s", t.phase, percent, t.threads, formatSince(t.phaseStart)))
}

// PhaseFinish: 结束当前阶段（清理行尾并换行），count>0 时附带处理数量。
func (t *Terminal) PhaseFinish(count uint64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
		t.println("")
	}
	line := fmt.Sprintf("[%s] done | 用时 %s", t.phase, formatSince(t.phaseStart))
	if count > 0 {
		line += " | " + humanize.Comma(int64(count)) + " numbers"
	}
	t.println(line)
}

// Abort: 中断提示，说明被打断的阶段与结果完整性。
func (t *Terminal) Abort(s contract.State) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.println("")
	}
	t.println(AbortMessage(s))
}

// AbortMessage 返回阶段对应的中断说明。
func AbortMessage(s contract.State) string {
	switch s {
	case contract.StateProcessing:
		return "Processing interrupted. Result is partial."
	case contract.StateAggregating:
		return "Aggregation interrupted. Result is partial."
	case contract.StateFinalization:
		return "Finalization interrupted. Result is full."
	default:
		return "Preprocessing interrupted. Result is unavailable."
	}
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] %s | 总用时 %s", tag, safe(t.input), formatDur(dur)))
}

// 内部输出工具
func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 新行比旧行短时以空格覆盖残留
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if base == "" || base == "." {
		return ""
	}
	if visLen(base) <= max {
		return base
	}
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	rs := []rune(base)
	return string(rs[:cut]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
