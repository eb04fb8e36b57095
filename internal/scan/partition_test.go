package scan

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"primescan/pkg/contract"
)

// TestPartitionCoversAligned 分块连续、对齐且覆盖 [0, L')
func TestPartitionCoversAligned(t *testing.T) {
	for _, tc := range []struct {
		size  int64
		width int
		n     int
	}{
		{54, 6, 1}, {54, 6, 2}, {54, 6, 4}, {54, 6, 9}, {54, 6, 20},
		{1000, 8, 7}, {1003, 4, 3}, {5, 6, 2}, {0, 6, 3}, {4097, 1, 16},
	} {
		chunks, err := Partition(tc.size, tc.width, tc.n)
		require.NoError(t, err)
		require.Len(t, chunks, tc.n)
		usable := Usable(tc.size, tc.width)
		var next int64
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, next, c.Start, "size=%d n=%d 分块 %d 起点不连续", tc.size, tc.n, i)
			assert.LessOrEqual(t, c.Start, c.End)
			assert.LessOrEqual(t, c.End, usable, "分块不得越界")
			assert.Zero(t, c.Start%int64(tc.width), "起点未对齐")
			assert.Zero(t, c.Len()%int64(tc.width), "长度未对齐")
			next = c.End
		}
		assert.Equal(t, usable, next, "size=%d n=%d 未覆盖全部元素", tc.size, tc.n)
	}
}

// TestPartitionDropsPartialTail 尾部不完整元素被忽略
func TestPartitionDropsPartialTail(t *testing.T) {
	chunks, err := Partition(59, 6, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(54), chunks[1].End)
	assert.Equal(t, int64(30), chunks[0].End, "C = ceil(54/2)=27 向上取整到 30")
}

func TestPartitionInvalid(t *testing.T) {
	_, err := Partition(10, 0, 1)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = Partition(10, 9, 1)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = Partition(10, 2, 0)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestThreads(t *testing.T) {
	assert.Equal(t, 1, Threads(100, SerialThreshold, 0))
	assert.Equal(t, runtime.NumCPU(), Threads(SerialThreshold, SerialThreshold, 0))
	assert.Equal(t, 5, Threads(100, SerialThreshold, 5), "显式配置优先")
	assert.Equal(t, 1, Threads(100, 0, 0), "阈值缺省为 SerialThreshold")
}
