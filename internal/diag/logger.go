package diag

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为组件/阶段结构化日志：单行 JSON，事件形如
// {level, ts, corr_id, comp, stage(start|finish|error), code?, dur_ms?, count?, input?, chunk?, msg, kv?}。
type Logger struct {
	corrID string
	z      *zap.Logger
	level  zap.AtomicLevel
	sink   *RotatingFile
}

// NewLogger 按配置的 level 初始化，日志写入 logs/primescan-current.log，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	l := newLogger(zapcore.AddSync(sink), corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入 w（测试与 stderr 输出用）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	return newLogger(zapcore.AddSync(w), corrID, level)
}

func newLogger(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	lvl := zap.NewAtomicLevelAt(parseLevel(level))
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, lvl)
	z := zap.New(core).With(zap.String("corr_id", corrID))
	return &Logger{corrID: corrID, z: z, level: lvl}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ValidLevel 报告 s 是否为可识别的级别名（空串视为 info）。
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// CorrID 返回关联 ID；nil 日志器返回空串。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// SetLevel 运行期调整级别。
func (l *Logger) SetLevel(level string) { l.level.SetLevel(parseLevel(level)) }

// Close 刷新并关闭文件 sink。
func (l *Logger) Close() error {
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// event 组装标准字段；空值字段省略。
type event struct {
	comp  string
	stage string
	code  string
	dur   time.Duration
	count int64
	input string
	chunk string
	kv    map[string]string
}

func (l *Logger) log(lv zapcore.Level, msg string, ev event) {
	if l == nil || !l.level.Enabled(lv) {
		return
	}
	fields := make([]zap.Field, 0, 8)
	fields = append(fields, zap.String("comp", ev.comp), zap.String("stage", ev.stage))
	if ev.code != "" {
		fields = append(fields, zap.String("code", ev.code))
	}
	if ev.dur > 0 {
		fields = append(fields, zap.Int64("dur_ms", ev.dur.Milliseconds()))
	}
	if ev.count != 0 {
		fields = append(fields, zap.Int64("count", ev.count))
	}
	if ev.input != "" {
		fields = append(fields, zap.String("input", ev.input))
	}
	if ev.chunk != "" {
		fields = append(fields, zap.String("chunk", ev.chunk))
	}
	if len(ev.kv) > 0 {
		fields = append(fields, zap.Any("kv", ev.kv))
	}
	if ce := l.z.Check(lv, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "start"})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 input/chunk 的 start。
func (l *Logger) StartWith(comp, msg, input, chunk string) *Timer {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "start", input: input, chunk: chunk})
	return &Timer{l: l, comp: comp, input: input, chunk: chunk, t0: time.Now()}
}

// StartWithKV 记录带 input/chunk 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, input, chunk string, kv map[string]string) *Timer {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "start", input: input, chunk: chunk, kv: kv})
	return &Timer{l: l, comp: comp, input: input, chunk: chunk, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWith 支持 input/chunk。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, input, chunk string) {
	l.ErrorWithKV(comp, code, msg, durSince, input, chunk, nil)
}

// ErrorWithKV 支持附带键值对（例如分块区间、Run 状态）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, input, chunk string, kv map[string]string) {
	var dur time.Duration
	if durSince != nil {
		dur = time.Since(*durSince)
	}
	l.log(zapcore.ErrorLevel, msg, event{comp: comp, stage: "error", code: code, dur: dur, input: input, chunk: chunk, kv: kv})
}

// Warn 记录 warn 级别的 finish 类提示（如取消后的降级聚合）。
func (l *Logger) Warn(comp, msg string, kv map[string]string) {
	l.log(zapcore.WarnLevel, msg, event{comp: comp, stage: "warn", kv: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "finish", dur: time.Since(start), count: count})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	input string
	chunk string
	t0    time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, msg, event{comp: t.comp, stage: "finish", dur: time.Since(t.t0), count: count, input: t.input, chunk: t.chunk})
}

// Since 返回起点（供 Error 计算耗时）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, input, chunk string, kv map[string]string) {
	l.log(zapcore.DebugLevel, msg, event{comp: comp, stage: "start", input: input, chunk: chunk, kv: kv})
}
