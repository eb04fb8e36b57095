package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"primescan/pkg/contract"
)

// TestRotatingFile 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	if err := w.WriteLine([]byte("first line that is very long")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := w.WriteLine([]byte("second")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
	_ = w.Close()
}

// TestRotatingFileRotateFiles 当前文件名与时间戳文件存在
func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	defer w.Close()
	for i := 0; i < 5; i++ {
		if err := w.WriteLine([]byte("xxxxxxxxxxxxxxxxxx")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == currentLogName {
			hasCurrent = true
		}
		if strings.HasPrefix(e.Name(), "primescan-") && strings.HasSuffix(e.Name(), ".log") && !strings.Contains(e.Name(), "current") {
			hasRotated = true
		}
	}
	if !hasCurrent || !hasRotated {
		t.Fatalf("expect both current and rotated files, got current=%v rotated=%v", hasCurrent, hasRotated)
	}
}

// TestRotatingFileDefaultsAndRotateNoOpen 默认 maxBytes 分支与 rotate 在 f==nil 分支
func TestRotatingFileDefaultsAndRotateNoOpen(t *testing.T) {
	w := NewRotatingFile(t.TempDir(), 0)
	if err := w.WriteLine([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	_ = w.f.Close()
	w.f = nil
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	_ = w.Close()
}

// TestMetrics 指标计数与导出
func TestMetrics(t *testing.T) {
	before := testutil.ToFloat64(opTotal.WithLabelValues("scan", "finish", "success"))
	IncOp("scan", "finish", "success")
	if got := testutil.ToFloat64(opTotal.WithLabelValues("scan", "finish", "success")); got != before+1 {
		t.Fatalf("op_total 未累加: %v", got)
	}
	IncError("scan", string(CodeIO))
	ObserveDuration("scan", "processing", 12)
	n0 := testutil.ToFloat64(numbersScanned)
	AddScanned(10, 3)
	AddScanned(0, 0)
	if testutil.ToFloat64(numbersScanned) != n0+10 {
		t.Fatalf("numbers_scanned_total 未累加")
	}

	fp := filepath.Join(t.TempDir(), "m.prom")
	if err := WriteMetricsFile(fp); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	b, _ := os.ReadFile(fp)
	for _, name := range []string{"primescan_op_total", "primescan_error_total", "primescan_op_duration_ms", "primescan_primes_found_total"} {
		if !strings.Contains(string(b), name) {
			t.Fatalf("导出缺少 %s", name)
		}
	}
}

// TestClassifyAndExitCode 错误分类与退出码
func TestClassifyAndExitCode(t *testing.T) {
	cases := []struct {
		err  error
		code Code
		exit int
	}{
		{context.Canceled, CodeCancel, ExitCancelled},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeCancel, ExitCancelled},
		{fmt.Errorf("x: %w", contract.ErrStitchInvalid), CodeStitch, ExitFault},
		{contract.ErrInvariantViolation, CodeInvariant, ExitFault},
		{contract.ErrUnsupportedByteOrder, CodeEnv, ExitEnv},
		{fmt.Errorf("%w: a.bin", contract.ErrInputMissing), CodeEnv, ExitEnv},
		{contract.ErrInvalidInput, CodeConfig, ExitEnv},
		{contract.ErrPathInvalid, CodeIO, ExitFault},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO, ExitFault},
		{errors.New("other"), CodeUnknown, ExitFault},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.code {
			t.Fatalf("Classify(%v)=%s want %s", c.err, got, c.code)
		}
		if got := ExitCode(c.err); got != c.exit {
			t.Fatalf("ExitCode(%v)=%d want %d", c.err, got, c.exit)
		}
	}
	if Classify(nil) != CodeUnknown || ExitCode(nil) != ExitOK {
		t.Fatalf("nil 分类/退出码错误")
	}
}

// TestLoggerEventShape Logger 事件形状
func TestLoggerEventShape(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "corr-1", "debug")
	timer := l.StartWith("scan", "chunk", "a.bin", "3")
	timer.Finish("ok", 42)
	start := time.Now().Add(-5 * time.Millisecond)
	l.ErrorWithKV("scan", string(CodeStitch), "bad", &start, "a.bin", "", map[string]string{"chunk": "3"})
	l.DebugStart("scan", "dbg", "", "", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("应有 4 行日志，得到 %d: %q", len(lines), buf.String())
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("非 JSON: %v", err)
	}
	for k, want := range map[string]any{"level": "info", "corr_id": "corr-1", "comp": "scan", "stage": "finish", "input": "a.bin", "chunk": "3", "msg": "ok", "count": float64(42)} {
		if ev[k] != want {
			t.Fatalf("字段 %s=%v want %v", k, ev[k], want)
		}
	}
	if err := json.Unmarshal([]byte(lines[2]), &ev); err != nil {
		t.Fatalf("非 JSON: %v", err)
	}
	if ev["level"] != "error" || ev["code"] != "stitch" || ev["stage"] != "error" {
		t.Fatalf("error 事件字段错误: %v", ev)
	}
	if _, ok := ev["dur_ms"]; !ok {
		t.Fatalf("error 事件缺少 dur_ms")
	}
}

// TestLoggerLevelsAndFilter 级别过滤与运行期调整
func TestLoggerLevelsAndFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "c", "warn")
	l.Start("comp", "hidden").Finish("hidden", 0)
	l.DebugStart("comp", "hidden", "", "", nil)
	if buf.Len() != 0 {
		t.Fatalf("warn 级别不应输出 info/debug: %q", buf.String())
	}
	l.Warn("comp", "shown", nil)
	l.Error("comp", "code", "shown", nil)
	l.ErrorWith("comp", "code", "shown", nil, "f", "b")
	if strings.Count(buf.String(), "\n") != 3 {
		t.Fatalf("warn/error 应输出: %q", buf.String())
	}
	l.SetLevel("info")
	l.InfoFinish("comp", "now shown", time.Now(), 1)
	if !strings.Contains(buf.String(), "now shown") {
		t.Fatalf("SetLevel 未生效")
	}
	if !ValidLevel("DEBUG") || ValidLevel("verbose") {
		t.Fatalf("ValidLevel 判定错误")
	}
	var tnil *Timer
	tnil.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
	if tnil.Since() != nil {
		t.Fatalf("nil timer Since 应为 nil")
	}
}

// TestLoggerWithSink 文件 sink 写入
func TestLoggerWithSink(t *testing.T) {
	wd, _ := os.Getwd()
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	l := NewLogger("corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	l.Error("comp", "code", "msg", nil)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "logs", currentLogName))
	if err != nil {
		t.Fatalf("log file not found: %v", err)
	}
	if strings.Count(string(b), "\n") != 3 {
		t.Fatalf("应写入 3 行: %q", b)
	}
}

// TestTerminalNonTTYFlow 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart("data/primes.bin", 2048, 4)
	term.PhaseStart("processing")
	term.Progress(5)
	term.Progress(25)
	term.Progress(26)
	term.Progress(100)
	term.PhaseFinish(1234567)
	term.RunFinish(true, 41300*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] primes.bin | 2.0 KiB | threads=4",
		"[processing] 20%",
		"[processing] 100%",
		"1,234,567 numbers",
		"[ok] primes.bin | 总用时 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q: %q", want, out)
		}
	}
	if strings.Count(out, "[processing] 20%") != 1 {
		t.Fatalf("同一 10%% 档位只应打印一次: %q", out)
	}
}

// TestTerminalTTYProgressThrottleAndClear 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart("a.bin", 10, 2)
	term.PhaseStart("processing")

	term.Progress(10)
	first := sb.String()
	if !strings.Contains(first, "\r[processing]") {
		t.Fatalf("first progress should be inline with CR: %q", first)
	}
	term.Progress(20)
	if sb.String() != first {
		t.Fatalf("second progress should be throttled")
	}
	time.Sleep(120 * time.Millisecond)
	term.Progress(30)
	if len(sb.String()) <= len(first) {
		t.Fatalf("third progress should append output")
	}
	term.PhaseFinish(0)
	final := sb.String()
	idx := strings.LastIndex(final, "[processing] done")
	if idx < 0 {
		t.Fatalf("missing done line: %q", final)
	}
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	if cr < 0 || !strings.Contains(seg[cr+1:], " ") {
		t.Fatalf("clear tail should write spaces after CR: %q", seg)
	}
}

func TestTerminalAbortMessages(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.Abort(contract.StateAggregating)
	if !strings.Contains(sb.String(), "Aggregation interrupted. Result is partial.") {
		t.Fatalf("abort message: %q", sb.String())
	}
	if AbortMessage(contract.StatePreprocessing) != "Preprocessing interrupted. Result is unavailable." ||
		AbortMessage(contract.StateFinalization) != "Finalization interrupted. Result is full." ||
		AbortMessage(contract.StateProcessing) != "Processing interrupted. Result is partial." {
		t.Fatalf("abort messages mismatch")
	}
}

// 写失败降级为禁用态
type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

func TestTerminalDisableOnWriteError(t *testing.T) {
	fw := &flakyWriter{fail: true}
	term := NewTerminal(fw, true)
	term.RunStart("x", 1, 1)
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.PhaseStart("a")
	term.Progress(50)
	term.PhaseFinish(1)
	term.Abort(contract.StateProcessing)
	term.RunFinish(true, 0)
}

func TestTerminalInlineWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.isTTY = true
	term.Progress(1)
	if term.enabled {
		t.Fatalf("terminal should be disabled after inline error")
	}
}

func TestNewTerminalCIEnv(t *testing.T) {
	t.Setenv("CI", "true")
	term := NewTerminal(os.Stderr, true)
	if term.isTTY {
		t.Fatalf("CI env should force non-tty")
	}
}

func TestTerminalNilReceiverNoop(t *testing.T) {
	var tn *Terminal
	tn.RunStart("x", 1, 1)
	tn.PhaseStart("a")
	tn.Progress(1)
	tn.PhaseFinish(0)
	tn.Abort(contract.StateProcessing)
	tn.RunFinish(true, 0)
}

// TestHelpers 工具函数
func TestHelpers(t *testing.T) {
	if shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.bin", 10) == "" {
		t.Fatalf("shortenBase should produce non-empty")
	}
	if shortenBase("x", 0) != "" || shortenBase("", 10) != "" {
		t.Fatalf("shortenBase 边界")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe replace failed")
	}
	if formatDur(0) != "0ms" || formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur failed")
	}
	if NowUTC() == "" {
		t.Fatalf("应返回时间字符串")
	}
	SetTerminal(nil)
	if GetTerminal() != nil {
		t.Fatalf("expected nil terminal")
	}
	SetTerminal(NewTerminal(os.Stderr, false))
	if GetTerminal() == nil {
		t.Fatalf("expected non-nil terminal")
	}
	SetTerminal(nil)
}
