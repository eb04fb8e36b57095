package scan

import (
	"context"
	"fmt"

	"primescan/pkg/contract"
)

// Summaries 收集各扫描器的摘要（须在所有 worker 结束后调用）。
func Summaries(scanners []*Scanner) []Summary {
	out := make([]Summary, 0, len(scanners))
	for _, s := range scanners {
		out = append(out, s.Summary())
	}
	return out
}

// Aggregate 合并各分块摘要，得到与串行扫描一致的全局最优链。
//   - stitch=false: 仅比较各分块 best（取消路径使用，总能完成）；
//   - stitch=true: 先按分块顺序构造片段列表并折叠为最大拼接，再与各分块 best 一起择优。
//
// 片段构造期间检查 ctx；取消时返回 ctx.Err()，调用方应改用 stitch=false 重新聚合。
func Aggregate(ctx context.Context, sums []Summary, stitch bool) (contract.Run, error) {
	var acc Tracker
	for _, s := range sums {
		if err := acc.Offer(s.Best); err != nil {
			return contract.Run{}, fmt.Errorf("aggregate chunk #%d best: %w", s.Index, err)
		}
	}
	if !stitch {
		return acc.Best(), nil
	}

	pieces, err := fragments(ctx, sums)
	if err != nil {
		return contract.Run{}, err
	}
	stitched, err := fold(ctx, pieces)
	if err != nil {
		return contract.Run{}, err
	}
	for _, r := range stitched {
		if err := acc.Offer(r); err != nil {
			return contract.Run{}, fmt.Errorf("aggregate stitched run: %w", err)
		}
	}
	return acc.Best(), nil
}

// fragments 按分块顺序展开 head/best/tail，空 Run 作为分隔符。
func fragments(ctx context.Context, sums []Summary) ([]contract.Run, error) {
	var delim contract.Run
	out := make([]contract.Run, 0, len(sums)*4)
	for _, s := range sums {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.Best.IsEmpty() {
			// 无素数的分块：skip 下透明；break 下其合数隔断两侧。
			if s.LeadingGap {
				out = append(out, delim)
			}
			continue
		}
		if s.LeadingGap {
			out = append(out, delim)
		}
		out = append(out, s.Head)

		switch {
		case s.Best == s.Head && s.HeadAndBest:
			return nil, fmt.Errorf("%w: chunk #%d best equals head but is marked adjacent to it", contract.ErrStitchInvalid, s.Index)
		case s.Best != s.Head:
			if !s.HeadAndBest {
				out = append(out, delim)
			}
			out = append(out, s.Best)
		}

		switch {
		case s.Tail == s.Best && s.BestAndTail:
			return nil, fmt.Errorf("%w: chunk #%d tail equals best but is marked adjacent to it", contract.ErrStitchInvalid, s.Index)
		case s.Tail != s.Best:
			if !s.BestAndTail {
				out = append(out, delim)
			}
			out = append(out, s.Tail)
		}

		if s.TrailingGap {
			out = append(out, delim)
		}
	}
	return out, nil
}

// fold 将片段折叠为最大拼接；每个被冻结的滚动 Run 都是候选。
func fold(ctx context.Context, pieces []contract.Run) ([]contract.Run, error) {
	var (
		out     []contract.Run
		rolling contract.Run
	)
	for i, p := range pieces {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ok, err := rolling.Concat(p)
		if err != nil {
			return nil, fmt.Errorf("fold fragment %d: %w", i, err)
		}
		if !ok {
			if !rolling.IsEmpty() {
				out = append(out, rolling)
			}
			rolling = p
		}
	}
	if !rolling.IsEmpty() {
		out = append(out, rolling)
	}
	return out, nil
}
