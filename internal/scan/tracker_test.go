package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"primescan/pkg/contract"
)

func feed(t *testing.T, tr *Tracker, vals ...uint64) {
	t.Helper()
	for _, v := range vals {
		require.NoError(t, tr.Add(v, v*8))
	}
}

// TestTrackerSingleRun 单链时 head=best=tail，标志均为 false
func TestTrackerSingleRun(t *testing.T) {
	var tr Tracker
	feed(t, &tr, 2, 3, 5)
	want := contract.Run{FirstValue: 2, FirstOffset: 16, LastValue: 5, LastOffset: 40, Length: 3}
	assert.Equal(t, want, tr.Head())
	assert.Equal(t, want, tr.Best())
	assert.Equal(t, want, tr.Tail())
	assert.False(t, tr.HeadAndBest())
	assert.False(t, tr.BestAndTail())
}

// TestTrackerLosingAttemptBeforeBest head 与第二名 best 之间有落败尝试时 headAndBest 为 false
func TestTrackerLosingAttemptBeforeBest(t *testing.T) {
	var tr Tracker
	// 偏移需递增：使用 Add 的第二参数直接给出
	steps := []struct{ v, off uint64 }{
		{5, 0}, {7, 1}, // head [5,7]
		{3, 2}, // 落败 [3]
		{2, 3}, {3, 4}, {5, 5}, // best [2,3,5]
	}
	for _, s := range steps {
		require.NoError(t, tr.Add(s.v, s.off))
	}
	assert.Equal(t, uint64(3), tr.Best().Length)
	assert.Equal(t, uint64(2), tr.Head().Length)
	assert.False(t, tr.HeadAndBest(), "head 与 best 之间隔着一次 finalize")
	assert.False(t, tr.BestAndTail())

	require.NoError(t, tr.Add(2, 6))
	assert.Equal(t, contract.Run{FirstValue: 2, FirstOffset: 6, LastValue: 2, LastOffset: 6, Length: 1}, tr.Tail())
	assert.True(t, tr.BestAndTail(), "tail 紧随 best")
}

// TestTrackerHeadAndBest best 为第二次 finalize 时 headAndBest 为 true；之后 best 更替则复位
func TestTrackerHeadAndBest(t *testing.T) {
	var tr Tracker
	require.NoError(t, tr.Add(7, 0))
	require.NoError(t, tr.Add(2, 1))
	require.NoError(t, tr.Add(3, 2))
	assert.True(t, tr.HeadAndBest())

	require.NoError(t, tr.Add(2, 3))
	require.NoError(t, tr.Add(3, 4))
	require.NoError(t, tr.Add(5, 5))
	assert.Equal(t, uint64(3), tr.Best().Length)
	assert.False(t, tr.HeadAndBest())
}

// TestTrackerGap Gap 使两侧链不相邻
func TestTrackerGap(t *testing.T) {
	var tr Tracker
	require.NoError(t, tr.Add(7, 0))
	tr.Gap()
	require.NoError(t, tr.Add(2, 2))
	require.NoError(t, tr.Add(3, 3))
	assert.Equal(t, uint64(2), tr.Best().Length)
	assert.False(t, tr.HeadAndBest())
}

func TestTrackerOfferIgnoresEmpty(t *testing.T) {
	var tr Tracker
	require.NoError(t, tr.Offer(contract.Run{}))
	assert.True(t, tr.Best().IsEmpty())
	r := contract.Run{FirstValue: 3, LastValue: 5, LastOffset: 6, Length: 2}
	require.NoError(t, tr.Offer(r))
	require.NoError(t, tr.Offer(contract.Run{}))
	assert.Equal(t, r, tr.Best())
}
