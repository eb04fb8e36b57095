package scan

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"primescan/pkg/contract"
)

// memSource: 内存中的定宽序列，偏移按 width 换算为下标。
type memSource struct {
	vals  []uint64
	width int
}

func (m *memSource) Name() string { return "mem" }
func (m *memSource) Size() int64  { return int64(len(m.vals) * m.width) }
func (m *memSource) Width() int   { return m.width }
func (m *memSource) Close() error { return nil }

func (m *memSource) ReadAt(off int64) (uint64, error) {
	idx := int(off) / m.width
	if off%int64(m.width) != 0 || idx >= len(m.vals) {
		return 0, io.EOF
	}
	return m.vals[idx], nil
}

func (m *memSource) ReadBlock(off int64, dst []uint64) (int, error) {
	idx := int(off) / m.width
	if idx > len(m.vals) {
		return 0, io.EOF
	}
	return copy(dst, m.vals[idx:]), nil
}

type trialOracle struct{}

func (trialOracle) IsPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	for d := uint64(2); d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// reference 逐元素串行求最优链，与 Tracker 无关。
func reference(vals []uint64, width int, pol Policy) contract.Run {
	var best, cur contract.Run
	flush := func() {
		if !cur.IsEmpty() && (best.IsEmpty() || !cur.Worse(best)) {
			best = cur
		}
		cur = contract.Run{}
	}
	for i, v := range vals {
		off := uint64(i * width)
		if (trialOracle{}).IsPrime(v) {
			if ok, _ := cur.Append(v, off); !ok {
				flush()
				_, _ = cur.Append(v, off)
			}
		} else if pol == PolicyBreak {
			flush()
		}
	}
	flush()
	return best
}

// scanAll 以 n 个分块扫描并聚合。
func scanAll(t *testing.T, src contract.NumberSource, n int, pol Policy, stitch bool) contract.Run {
	t.Helper()
	chunks, err := Partition(src.Size(), src.Width(), n)
	require.NoError(t, err)
	cfg := Config{Source: src, Oracle: trialOracle{}, BlockBytes: 3 * src.Width(), Composites: pol}
	scanners := make([]*Scanner, len(chunks))
	for i, c := range chunks {
		scanners[i] = NewScanner(cfg, c)
		require.NoError(t, scanners[i].Scan(context.Background()))
	}
	got, err := Aggregate(context.Background(), Summaries(scanners), stitch)
	require.NoError(t, err)
	return got
}
