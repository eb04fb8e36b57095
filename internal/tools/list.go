package tools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"

	"primescan/pkg/contract"
)

// Entry: 文件中的一个素数及其偏移。
type Entry struct {
	Value  uint64
	Offset uint64
}

// Primes 按偏移升序收集 src 中的全部素数；ctx 在块之间检查。
func Primes(ctx context.Context, src contract.NumberSource, orc contract.Oracle, blockBytes int) ([]Entry, error) {
	w := int64(src.Width())
	if w < 1 || w > 8 {
		return nil, fmt.Errorf("%w: element width %d out of range [1,8]", contract.ErrInvalidInput, w)
	}
	per := int64(blockBytes) / w
	if per < 1 {
		per = 1
	}
	buf := make([]uint64, per)
	usable := src.Size() - src.Size()%w
	var out []Entry
	for off := int64(0); off < usable; {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		n := (usable - off) / w
		if n > per {
			n = per
		}
		got, err := src.ReadBlock(off, buf[:n])
		if err != nil {
			return out, fmt.Errorf("read at %d: %w", off, err)
		}
		if got == 0 {
			return out, fmt.Errorf("read at %d: %w", off, io.ErrUnexpectedEOF)
		}
		for i := 0; i < got; i++ {
			if orc.IsPrime(buf[i]) {
				out = append(out, Entry{Value: buf[i], Offset: uint64(off + int64(i)*w)})
			}
		}
		off += int64(got) * w
	}
	return out, nil
}

// Ranks 返回每个条目在全部素数升序排列中的名次（从 0 起；重复值共享首个名次）。
func Ranks(entries []Entry) []int {
	sorted := make([]uint64, len(entries))
	for i, e := range entries {
		sorted[i] = e.Value
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	ranks := make([]int, len(entries))
	for i, e := range entries {
		ranks[i] = sort.Search(len(sorted), func(k int) bool { return sorted[k] >= e.Value })
	}
	return ranks
}

// List 按文件顺序打印每个素数、名次与字节偏移，末尾给出总数。
func List(ctx context.Context, src contract.NumberSource, orc contract.Oracle, blockBytes int, w io.Writer) (int, error) {
	entries, err := Primes(ctx, src, orc, blockBytes)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(w)
	if len(entries) == 0 {
		fmt.Fprintln(bw, "No primes found.")
		return 0, bw.Flush()
	}
	fmt.Fprintln(bw, "Prime | Rank | Offset:")
	for i, r := range Ranks(entries) {
		fmt.Fprintf(bw, "%d | %d | %d\n", entries[i].Value, r, entries[i].Offset)
	}
	fmt.Fprintf(bw, "Total primes N: %d\n", len(entries))
	return len(entries), bw.Flush()
}
