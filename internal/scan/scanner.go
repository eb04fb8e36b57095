package scan

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"primescan/pkg/contract"
)

// DefaultBlockBytes: 单次批量读取的字节数（子块）。取消检查发生在子块之间。
const DefaultBlockBytes = 64 * 1024

// Policy: 合数处理策略。
type Policy int

const (
	// PolicySkip 忽略合数，合数不打断升序链。
	PolicySkip Policy = iota
	// PolicyBreak 合数终止当前链，其两侧的链永不视为相邻。
	PolicyBreak
)

// String 返回配置中使用的名称。
func (p Policy) String() string {
	if p == PolicyBreak {
		return "break"
	}
	return "skip"
}

// ParsePolicy 解析 skip|break（大小写不敏感，空串为 skip）。
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return PolicySkip, nil
	case "break":
		return PolicyBreak, nil
	default:
		return PolicySkip, fmt.Errorf("%w: composites must be skip|break, got %q", contract.ErrInvalidInput, s)
	}
}

// Config: 所有扫描器共享的依赖（显式注入）。
type Config struct {
	Source     contract.NumberSource
	Oracle     contract.Oracle
	BlockBytes int
	Composites Policy
	// TotalElements: 整个作业的元素数，用于把进度换算为 0–100 的贡献值；0 表示不报告。
	TotalElements uint64
	// OnBlock 在每个子块处理后回调（numbers, primes）；可为 nil。
	OnBlock func(numbers, primes int)
}

// Summary: 单个分块的最终摘要，是聚合器唯一的输入。
type Summary struct {
	Index       int
	Head        contract.Run
	Best        contract.Run
	Tail        contract.Run
	HeadAndBest bool
	BestAndTail bool
	LeadingGap  bool
	TrailingGap bool
	Numbers     uint64
	Primes      uint64
}

// Scanner 顺序扫描一个分块，并保留 head/best/tail 摘要。
// Best/Head/Tail/Summary 只应在 Scan 返回后调用；Progress 可随时并发读取。
type Scanner struct {
	cfg   Config
	chunk Chunk
	tr    Tracker

	done   atomic.Uint64
	primes uint64

	seenPrime   bool
	leadingGap  bool
	trailingGap bool
}

// NewScanner 为分块 c 创建扫描器。
func NewScanner(cfg Config, c Chunk) *Scanner {
	if cfg.BlockBytes <= 0 {
		cfg.BlockBytes = DefaultBlockBytes
	}
	return &Scanner{cfg: cfg, chunk: c}
}

// Chunk 返回扫描的区间。
func (s *Scanner) Chunk() Chunk { return s.chunk }

// Scan 按偏移升序读取分块内的所有元素。
// 上下文在子块之间检查；取消时返回 ctx.Err()，已处理部分的摘要保持一致可读。
func (s *Scanner) Scan(ctx context.Context) error {
	src := s.cfg.Source
	if src == nil || s.cfg.Oracle == nil {
		return fmt.Errorf("%w: scanner requires source and oracle", contract.ErrInvalidInput)
	}
	w := int64(src.Width())
	if w < 1 || w > 8 {
		return fmt.Errorf("%w: element width %d out of range [1,8]", contract.ErrInvalidInput, w)
	}
	per := int64(s.cfg.BlockBytes) / w
	if per < 1 {
		per = 1
	}
	buf := make([]uint64, per)

	for off := s.chunk.Start; off < s.chunk.End; {
		if err := ctx.Err(); err != nil {
			s.tr.finalize()
			return err
		}
		n := (s.chunk.End - off) / w
		if n > per {
			n = per
		}
		if n == 0 {
			break
		}
		got, err := src.ReadBlock(off, buf[:n])
		if err == nil && int64(got) != n {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			return fmt.Errorf("chunk #%d read at %d: %w", s.chunk.Index, off, err)
		}
		found := 0
		for i := 0; i < got; i++ {
			v := buf[i]
			o := uint64(off + int64(i)*w)
			if s.cfg.Oracle.IsPrime(v) {
				if err := s.tr.Add(v, o); err != nil {
					return fmt.Errorf("chunk #%d: %w", s.chunk.Index, err)
				}
				found++
				s.seenPrime = true
				s.trailingGap = false
				continue
			}
			if s.cfg.Composites == PolicyBreak {
				if !s.seenPrime {
					s.leadingGap = true
				}
				s.trailingGap = true
				s.tr.Gap()
			}
		}
		s.primes += uint64(found)
		s.done.Add(uint64(got))
		if s.cfg.OnBlock != nil {
			s.cfg.OnBlock(got, found)
		}
		off += int64(got) * w
	}
	s.tr.finalize()
	return nil
}

// Best 返回分块内最优链。
func (s *Scanner) Best() contract.Run { return s.tr.Best() }

// Head 返回分块内第一条链。
func (s *Scanner) Head() contract.Run { return s.tr.Head() }

// Tail 返回 best 之后最近冻结的链（或 best 本身）。
func (s *Scanner) Tail() contract.Run { return s.tr.Tail() }

// Processed 返回已处理的元素数。
func (s *Scanner) Processed() uint64 { return s.done.Load() }

// Progress 返回本分块对整体进度的贡献（0–100 刻度）。
func (s *Scanner) Progress() float64 {
	if s.cfg.TotalElements == 0 {
		return 0
	}
	return float64(s.done.Load()) * 100 / float64(s.cfg.TotalElements)
}

// Summary 冻结未完成的链并返回摘要。
func (s *Scanner) Summary() Summary {
	return Summary{
		Index:       s.chunk.Index,
		Head:        s.tr.Head(),
		Best:        s.tr.Best(),
		Tail:        s.tr.Tail(),
		HeadAndBest: s.tr.HeadAndBest(),
		BestAndTail: s.tr.BestAndTail(),
		LeadingGap:  s.leadingGap,
		TrailingGap: s.trailingGap && s.seenPrime,
		Numbers:     s.done.Load(),
		Primes:      s.primes,
	}
}
