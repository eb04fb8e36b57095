package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"primescan/internal/diag"
	"primescan/internal/oracle"
	"primescan/internal/scan"
	"primescan/pkg/contract"
)

// - 单点并发：仅此层管理 worker；扫描器与判定器均为同步组件。
// - 首错取消：任一 worker 出错即取消整组，Wait 返回首个错误。
// - 取消不是故障：外部取消后以不拼接方式聚合，得到保守的部分结果并照常写出。
// - 阶段：preprocessing → processing → aggregating → finalization，中断时据此说明结果完整性。

// DefaultProgressInterval: 进度上报周期。
const DefaultProgressInterval = 100 * time.Millisecond

// Components 聚合运行所需的原子组件。
type Components struct {
	Source contract.SourceOpener
	Oracle contract.Oracle
	// Accelerator 可为 nil（不使用预计算表）。
	Accelerator contract.Accelerator
	Writers     []contract.ResultWriter
}

// Close 关闭实现了 io.Closer 的写出器（如 sqlite）。
func (c Components) Close() error {
	var errs []error
	for _, w := range c.Writers {
		if cl, ok := w.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Input        string
	ElementWidth int
	// Threads: 0 表示自动选择。
	Threads         int
	BlockBytes      int
	SerialThreshold int64
	Stitch          bool
	Composites      scan.Policy
	// CacheSize: 判定结果 LRU 容量；0 关闭。
	CacheSize int
	// 预计算表区间（仅 Accelerator 非空时使用）。
	AccelLower uint64
	AccelUpper uint64
	// ProgressInterval<=0 时使用 DefaultProgressInterval。
	ProgressInterval time.Duration
}

// Run 执行完整扫描：打开输入 → 分区 →（建表）→ 并行扫描 → 聚合 → 写出。
// 返回的 Report 在取消时 Partial=true 且 State 为被打断的阶段；此时错误包装 context.Canceled。
// 预处理阶段被取消时结果不可用，不调用写出器。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (contract.Report, error) {
	if err := sanity(comp, set); err != nil {
		return contract.Report{}, fmt.Errorf("sanity: %w", err)
	}
	started := time.Now()
	term := diag.GetTerminal()
	rep := contract.Report{
		ID:           uuid.NewString(),
		Input:        contract.NormalizeInput(set.Input),
		ElementWidth: set.ElementWidth,
		State:        contract.StatePreprocessing,
		StartedAt:    started.UTC(),
	}

	fail := func(stage string, err error) (contract.Report, error) {
		code := diag.Classify(err)
		logger.ErrorWith(stage, string(code), err.Error(), &started, rep.Input, "")
		diag.IncOp(stage, "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError(stage, string(code))
		}
		if code == diag.CodeCancel {
			term.Abort(rep.State)
		}
		return rep, err
	}

	// 预处理：字节序、打开输入、分区、判定器装配
	if err := contract.CheckHostByteOrder(); err != nil {
		return fail("pipeline", err)
	}
	st := logger.StartWith("source", "open", rep.Input, "")
	src, err := comp.Source.Open(ctx, set.Input, set.ElementWidth)
	if err != nil {
		return fail("source", fmt.Errorf("open %s: %w", set.Input, err))
	}
	defer src.Close()
	rep.SizeBytes = src.Size()
	st.Finish("open", rep.SizeBytes)

	usable := scan.Usable(rep.SizeBytes, set.ElementWidth)
	threads := scan.Threads(rep.SizeBytes, set.SerialThreshold, set.Threads)
	chunks, err := scan.Partition(rep.SizeBytes, set.ElementWidth, threads)
	if err != nil {
		return fail("partition", err)
	}
	rep.Threads = threads
	term.RunStart(set.Input, rep.SizeBytes, threads)
	logger.DebugStart("partition", "chunks", rep.Input, "", map[string]string{
		"threads": fmt.Sprintf("%d", threads),
		"usable":  fmt.Sprintf("%d", usable),
		"chunk":   fmt.Sprintf("%d", chunks[0].Len()),
	})

	var acc contract.Accelerator
	if comp.Accelerator != nil {
		term.PhaseStart("table")
		at := logger.StartWith("accelerator", "init", rep.Input, "")
		if err := comp.Accelerator.Init(ctx, set.AccelLower, set.AccelUpper, term.Progress); err != nil {
			return fail("accelerator", fmt.Errorf("accelerator init [%d,%d]: %w", set.AccelLower, set.AccelUpper, err))
		}
		defer comp.Accelerator.Destroy()
		term.PhaseFinish(0)
		lo, hi := comp.Accelerator.Bounds()
		logger.DebugStart("accelerator", "bounds", rep.Input, "", map[string]string{
			"lower": fmt.Sprintf("%d", lo),
			"upper": fmt.Sprintf("%d", hi),
		})
		at.Finish("init", 0)
		diag.IncOp("accelerator", "finish", "success")
		acc = comp.Accelerator
		rep.Accelerated = true
	}
	orc, err := oracle.Build(comp.Oracle, acc, set.CacheSize)
	if err != nil {
		return fail("oracle", err)
	}
	if err := ctx.Err(); err != nil {
		return fail("pipeline", err)
	}

	// 扫描
	rep.State = contract.StateProcessing
	cfg := scan.Config{
		Source:        src,
		Oracle:        orc,
		BlockBytes:    set.BlockBytes,
		Composites:    set.Composites,
		TotalElements: uint64(usable / int64(set.ElementWidth)),
		OnBlock:       diag.AddScanned,
	}
	scanners := make([]*scan.Scanner, len(chunks))
	for i, c := range chunks {
		scanners[i] = scan.NewScanner(cfg, c)
	}
	term.PhaseStart("scan")
	stop := reportProgress(ctx, scanners, set.ProgressInterval, term)
	sct := logger.StartWith("scan", "workers", rep.Input, "")
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range scanners {
		s := s
		g.Go(func() error { return s.Scan(gctx) })
	}
	serr := g.Wait()
	stop()
	if serr != nil && !isCancel(serr) {
		return fail("scan", serr)
	}
	cancelled := ctx.Err() != nil
	var scanned uint64
	for _, s := range scanners {
		scanned += s.Processed()
		c := s.Chunk()
		logger.DebugStart("scan", "chunk", rep.Input, fmt.Sprintf("%d", c.Index), map[string]string{
			"start":     fmt.Sprintf("%d", c.Start),
			"end":       fmt.Sprintf("%d", c.End),
			"processed": fmt.Sprintf("%d", s.Processed()),
		})
	}
	if c := oracle.CacheOf(orc); c != nil {
		hits, misses := c.Stats()
		logger.DebugStart("oracle", "cache", rep.Input, "", map[string]string{
			"hits":   fmt.Sprintf("%d", hits),
			"misses": fmt.Sprintf("%d", misses),
		})
	}
	if !cancelled {
		term.PhaseFinish(scanned)
		sct.Finish("workers", int64(scanned))
		diag.IncOp("scan", "finish", "success")
		diag.ObserveDuration("scan", "finish", time.Since(*sct.Since()).Milliseconds())
	}

	// 聚合：取消后只比较各分块 best（总能完成）
	if !cancelled {
		rep.State = contract.StateAggregating
	}
	interrupted := rep.State
	sums := scan.Summaries(scanners)
	stitch := set.Stitch && !cancelled
	agt := logger.StartWith("aggregate", "merge", rep.Input, "")
	res, err := scan.Aggregate(ctx, sums, stitch)
	if err != nil && isCancel(err) {
		cancelled = true
		stitch = false
		logger.Warn("aggregate", "stitching interrupted, falling back to chunk bests", nil)
		res, err = scan.Aggregate(context.Background(), sums, false)
	}
	if err != nil {
		return fail("aggregate", err)
	}
	agt.Finish("merge", int64(res.Length))
	rep.Result = res
	rep.Stitched = stitch
	rep.Partial = cancelled
	if !cancelled {
		rep.State = contract.StateFinalization
	} else {
		rep.State = interrupted
		term.Abort(interrupted)
		diag.IncOp("pipeline", "cancel", "partial")
	}

	// 写出：取消后仍需写出部分结果，改用不随父上下文取消的 ctx
	wctx := ctx
	if cancelled {
		wctx = context.WithoutCancel(ctx)
	}
	rep.DurationMS = time.Since(started).Milliseconds()
	if werr := writeAll(wctx, comp.Writers, rep, logger); werr != nil {
		return fail("writer", werr)
	}
	if cancelled {
		return rep, fmt.Errorf("scan interrupted during %s: %w", interrupted, context.Canceled)
	}
	return rep, nil
}

// writeAll 依次调用全部写出器；某个失败不阻止其余写出，错误合并返回。
func writeAll(ctx context.Context, writers []contract.ResultWriter, rep contract.Report, logger *diag.Logger) error {
	var errs []error
	for i, w := range writers {
		wt := logger.StartWith("writer", "write", rep.Input, fmt.Sprintf("%d", i))
		if err := w.Write(ctx, rep); err != nil {
			code := diag.Classify(err)
			logger.ErrorWith("writer", string(code), "write failed", wt.Since(), rep.Input, fmt.Sprintf("%d", i))
			errs = append(errs, fmt.Errorf("writer #%d: %w", i, err))
			continue
		}
		wt.Finish("write", 0)
		diag.IncOp("writer", "finish", "success")
	}
	return errors.Join(errs...)
}

// reportProgress 周期性汇总各扫描器的原子进度并推送到终端；返回的 stop 等待上报协程退出。
func reportProgress(ctx context.Context, scanners []*scan.Scanner, every time.Duration, term *diag.Terminal) func() {
	if term == nil {
		return func() {}
	}
	if every <= 0 {
		every = DefaultProgressInterval
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tk := time.NewTicker(every)
		defer tk.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-tk.C:
				term.Progress(Progress(scanners))
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// Progress 返回整体完成百分比（各分块贡献之和，0–100）。
func Progress(scanners []*scan.Scanner) float64 {
	var p float64
	for _, s := range scanners {
		if s != nil {
			p += s.Progress()
		}
	}
	if p > 100 {
		p = 100
	}
	return p
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// sanity 检查必需组件与参数的边界。
func sanity(comp Components, set Settings) error {
	if comp.Source == nil || comp.Oracle == nil {
		return fmt.Errorf("%w: source and oracle are required", contract.ErrInvalidInput)
	}
	for i, w := range comp.Writers {
		if w == nil {
			return fmt.Errorf("%w: writer #%d is nil", contract.ErrInvalidInput, i)
		}
	}
	if set.ElementWidth < 1 || set.ElementWidth > 8 {
		return fmt.Errorf("%w: element width %d out of range [1,8]", contract.ErrInvalidInput, set.ElementWidth)
	}
	if set.Threads < 0 {
		return fmt.Errorf("%w: threads must be >= 0", contract.ErrInvalidInput)
	}
	if comp.Accelerator != nil && set.AccelLower > set.AccelUpper {
		return fmt.Errorf("%w: accelerator lower %d > upper %d", contract.ErrInvalidInput, set.AccelLower, set.AccelUpper)
	}
	return nil
}
