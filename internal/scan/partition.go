package scan

import (
	"fmt"
	"runtime"

	"primescan/pkg/contract"
)

// SerialThreshold: 小于该字节数的输入只用 1 个 worker，避免调度开销压过扫描本身。
const SerialThreshold int64 = 4096

// Chunk: 分配给单个 worker 的连续、按元素对齐的字节区间 [Start, End)。
type Chunk struct {
	Index int
	Start int64
	End   int64
}

// Len 返回区间字节数。
func (c Chunk) Len() int64 { return c.End - c.Start }

// Threads 按输入大小选择 worker 数：configured>0 时直接采用；
// 否则小文件（< threshold）用 1，其余用逻辑核数。
func Threads(size, threshold int64, configured int) int {
	if configured > 0 {
		return configured
	}
	if threshold <= 0 {
		threshold = SerialThreshold
	}
	if size < threshold {
		return 1
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

// Usable 返回去掉尾部不完整元素后的字节数。
func Usable(size int64, width int) int64 {
	if size <= 0 || width <= 0 {
		return 0
	}
	return size - size%int64(width)
}

// Partition 将 [0, Usable(size)) 切分为 n 个按 width 对齐的连续块。
// 块大小 C = ceil(Usable/n) 再向上取整到 width 的倍数；前 n-1 块各 C 字节，最后一块取余下部分。
// 边界截断到 Usable，过度切分的小输入得到空的尾部块而非越界块。
func Partition(size int64, width, n int) ([]Chunk, error) {
	if width < 1 || width > 8 {
		return nil, fmt.Errorf("%w: element width %d out of range [1,8]", contract.ErrInvalidInput, width)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: threads must be >= 1, got %d", contract.ErrInvalidInput, n)
	}
	w := int64(width)
	usable := Usable(size, width)
	c := (usable + int64(n) - 1) / int64(n)
	if rem := c % w; rem != 0 {
		c += w - rem
	}
	chunks := make([]Chunk, n)
	for i := 0; i < n; i++ {
		start := min64(int64(i)*c, usable)
		end := min64(start+c, usable)
		if i == n-1 {
			end = usable
		}
		chunks[i] = Chunk{Index: i, Start: start, End: end}
	}
	return chunks, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
