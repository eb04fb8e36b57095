package stress

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfgpkg "primescan/internal/config"
	"primescan/internal/pipeline"
	"primescan/pkg/contract"
	"primescan/plugins/oracle/trial"
	sfs "primescan/plugins/source/filesystem"
)

type recWriter struct {
	mu   sync.Mutex
	reps []contract.Report
}

func (w *recWriter) Write(_ context.Context, rep contract.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reps = append(w.reps, rep)
	return nil
}

func (w *recWriter) last() contract.Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reps[len(w.reps)-1]
}

// writeRandom 写出 n 个 width 字节的小整数；值域小，素数与升序片段足够密集。
func writeRandom(t *testing.T, rng *rand.Rand, dir string, n, width int, tail int) (string, []uint64) {
	t.Helper()
	vals := make([]uint64, n)
	b := make([]byte, 0, n*width+tail)
	buf := make([]byte, width)
	for i := range vals {
		vals[i] = uint64(rng.Intn(200))
		sfs.Encode(buf, vals[i])
		b = append(b, buf...)
	}
	// 尾部不完整元素应被忽略
	for i := 0; i < tail; i++ {
		b = append(b, 0xff)
	}
	p := filepath.Join(dir, fmt.Sprintf("rand-%d-%d.bin", n, width))
	require.NoError(t, os.WriteFile(p, b, 0o644))
	return p, vals
}

// longest 返回朴素串行扫描得到的最长严格升序素数链长度。
func longest(vals []uint64, breakOnComposite bool) uint64 {
	orc := trial.New(nil)
	var best, cur uint64
	var last uint64
	for _, v := range vals {
		if !orc.IsPrime(v) {
			if breakOnComposite {
				cur = 0
			}
			continue
		}
		if cur > 0 && v > last {
			cur++
		} else {
			cur = 1
		}
		last = v
		if cur > best {
			best = cur
		}
	}
	return best
}

func runOnce(t *testing.T, input string, width, threads int, composites string, noStitch bool) contract.Report {
	t.Helper()
	cfg := cfgpkg.Defaults()
	cfg.Input = input
	cfg.ElementWidth = width
	cfg.Threads = threads
	cfg.Composites = composites
	cfg.NoStitch = noStitch
	cfg.BlockBytes = 4 * width
	cfg.Components.Writers = []string{"fs"}
	cfg.Options.Writers = map[string]map[string]any{"fs": {"output_dir": t.TempDir()}}
	comp, set, err := cfgpkg.Assemble(cfg)
	require.NoError(t, err)
	defer comp.Close()
	rec := &recWriter{}
	comp.Writers = append(comp.Writers, rec)
	_, err = pipeline.Run(context.Background(), comp, set, nil)
	require.NoError(t, err)
	return rec.last()
}

// TestParallelMatchesSerial 随机输入下，任意线程数的拼接结果与单线程一致。
func TestParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(20261018))
	dir := t.TempDir()
	for _, width := range []int{1, 3, 6, 8} {
		for _, n := range []int{0, 1, 7, 64, 500} {
			in, vals := writeRandom(t, rng, dir, n, width, rng.Intn(width))
			for _, pol := range []string{"skip", "break"} {
				t.Run(fmt.Sprintf("w%d_n%d_%s", width, n, pol), func(t *testing.T) {
					serial := runOnce(t, in, width, 1, pol, false)
					require.Equal(t, longest(vals, pol == "break"), serial.Result.Length)
					for _, threads := range []int{2, 3, 5, 8, 13, 32} {
						got := runOnce(t, in, width, threads, pol, false)
						require.Equal(t, serial.Result, got.Result, "threads=%d", threads)
						require.False(t, got.Partial)
					}
				})
			}
		}
	}
}

// TestNoStitchNeverLonger 不拼接时结果不长于拼接结果，且仍是合法链。
func TestNoStitchNeverLonger(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dir := t.TempDir()
	in, _ := writeRandom(t, rng, dir, 400, 4, 0)
	full := runOnce(t, in, 4, 1, "skip", false)
	for _, threads := range []int{2, 4, 16} {
		got := runOnce(t, in, 4, threads, "skip", true)
		require.LessOrEqual(t, got.Result.Length, full.Result.Length)
		require.False(t, got.Stitched)
		if got.Result.Length > 1 {
			require.Less(t, got.Result.FirstValue, got.Result.LastValue)
			require.Less(t, got.Result.FirstOffset, got.Result.LastOffset)
		}
	}
}

// TestStress 在不同并发度下重复扫描较大的文件，记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	rng := rand.New(rand.NewSource(42))
	dir := t.TempDir()
	in, _ := writeRandom(t, rng, dir, 200_000, 8, 0)
	for _, threads := range []int{1, 2, 4, 8, 16} {
		t.Run(fmt.Sprintf("threads_%d", threads), func(t *testing.T) {
			const runs = 5
			var want contract.Run
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				start := time.Now()
				rep := runOnce(t, in, 8, threads, "skip", false)
				latencies = append(latencies, time.Since(start))
				if i == 0 {
					want = rep.Result
				}
				require.Equal(t, want, rep.Result)
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			t.Logf("线程%d 平均%v 95%%延迟%v 最长链%d", threads, avg, latencies[idx], want.Length)
		})
	}
}
