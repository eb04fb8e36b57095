package sieve

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"primescan/pkg/contract"
)

const (
	// DefaultUpper: 默认表上界 2^26。
	DefaultUpper uint64 = 1 << 26
	// MaxUpper: 上界硬限制，保证步进不溢出。
	MaxUpper uint64 = 1 << 40
	// MaxSpan: 单表最大跨度（约 512MiB 位图）。
	MaxSpan uint64 = 1 << 33
	// defaultSegment: 每段处理的奇数个数。
	defaultSegment = 1 << 20
)

var cacheMagic = [4]byte{'P', 'S', 'V', '1'}

// Options: 区间与缓存配置。Lower/Upper 为 0 时取 Init 的参数。
type Options struct {
	// CachePath: 位图缓存文件；为空不缓存。边界匹配的缓存直接加载。
	CachePath string `json:"cache_path"`
	// SegmentSize: 每段奇数个数；<=0 使用默认 2^20。
	SegmentSize int `json:"segment_size"`
}

// Sieve 为只含奇数的埃氏筛位图（置位表示素数）。
// Init 不可并发调用；Init 完成后查询只读。
type Sieve struct {
	cachePath string
	segment   uint64

	lower uint64
	upper uint64
	base  uint64 // 区间内最小奇数
	bits  []uint64
	// Loaded 表示最近一次 Init 命中缓存。
	Loaded bool
}

// New 创建未初始化的 Sieve。
func New(opts *Options) *Sieve {
	s := &Sieve{segment: defaultSegment}
	if opts != nil {
		s.cachePath = opts.CachePath
		if opts.SegmentSize > 0 {
			s.segment = uint64(opts.SegmentSize)
		}
	}
	return s
}

var _ contract.Accelerator = (*Sieve)(nil)

// Init 构建 [lower, upper] 的位图，逐段回报 0–100 进度；ctx 在段之间检查。
func (s *Sieve) Init(ctx context.Context, lower, upper uint64, progress contract.ProgressFunc) error {
	if upper < lower {
		return fmt.Errorf("%w: sieve bounds [%d, %d] reversed", contract.ErrInvalidInput, lower, upper)
	}
	if upper > MaxUpper {
		return fmt.Errorf("%w: sieve upper %d exceeds %d", contract.ErrInvalidInput, upper, MaxUpper)
	}
	if upper-lower > MaxSpan {
		return fmt.Errorf("%w: sieve span %d exceeds %d", contract.ErrInvalidInput, upper-lower, MaxSpan)
	}
	if progress == nil {
		progress = func(float64) {}
	}
	s.Destroy()
	s.Loaded = false

	if s.cachePath != "" {
		bits, err := loadCache(s.cachePath, lower, upper)
		if err == nil {
			s.install(lower, upper, bits)
			s.Loaded = true
			progress(100)
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, errCacheMismatch) {
			return fmt.Errorf("load sieve cache %s: %w", s.cachePath, err)
		}
	}

	bits, err := s.build(ctx, lower, upper, progress)
	if err != nil {
		return err
	}
	s.install(lower, upper, bits)
	if s.cachePath != "" {
		if err := saveCache(s.cachePath, lower, upper, bits); err != nil {
			return fmt.Errorf("save sieve cache %s: %w", s.cachePath, err)
		}
	}
	return nil
}

func (s *Sieve) install(lower, upper uint64, bits []uint64) {
	s.lower, s.upper = lower, upper
	s.base = oddBase(lower)
	s.bits = bits
}

// Bounds 返回表覆盖的闭区间。
func (s *Sieve) Bounds() (uint64, uint64) { return s.lower, s.upper }

// Covers 报告 n 是否在已初始化的表内。
func (s *Sieve) Covers(n uint64) bool {
	return s.bits != nil && n >= s.lower && n <= s.upper
}

// IsPrime 查表；调用方须先以 Covers 确认覆盖。
func (s *Sieve) IsPrime(n uint64) bool {
	if !s.Covers(n) {
		return false
	}
	if n == 2 {
		return true
	}
	if n < 2 || n&1 == 0 {
		return false
	}
	i := (n - s.base) / 2
	return s.bits[i/64]&(1<<(i%64)) != 0
}

// Destroy 释放位图。
func (s *Sieve) Destroy() {
	s.bits = nil
	s.lower, s.upper, s.base = 0, 0, 0
}

func oddBase(lower uint64) uint64 { return lower | 1 }

func oddCount(lower, upper uint64) uint64 {
	b := oddBase(lower)
	if b > upper {
		return 0
	}
	return (upper-b)/2 + 1
}

func (s *Sieve) build(ctx context.Context, lower, upper uint64, progress contract.ProgressFunc) ([]uint64, error) {
	base := oddBase(lower)
	count := oddCount(lower, upper)
	bits := make([]uint64, (count+63)/64)
	for i := range bits {
		bits[i] = ^uint64(0)
	}
	unset := func(i uint64) { bits[i/64] &^= 1 << (i % 64) }
	if base == 1 && count > 0 {
		unset(0)
	}

	primes := basePrimes(isqrt(upper))
	segs := (count + s.segment - 1) / s.segment
	for seg := uint64(0); seg < segs; seg++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lo := base + 2*seg*s.segment // 段内首个奇数
		hiIdx := (seg + 1) * s.segment
		if hiIdx > count {
			hiIdx = count
		}
		hi := base + 2*(hiIdx-1) // 段内最后一个奇数
		for _, p := range primes {
			if p*p > hi {
				break
			}
			m := p * p
			if m < lo {
				m = (lo + p - 1) / p * p
			}
			if m&1 == 0 {
				m += p
			}
			for ; m <= hi; m += 2 * p {
				unset((m - base) / 2)
			}
		}
		progress(float64(seg+1) * 100 / float64(segs))
	}
	if segs == 0 {
		progress(100)
	}
	return bits, nil
}

// basePrimes 返回不超过 limit 的奇素数。
func basePrimes(limit uint64) []uint64 {
	if limit < 3 {
		return nil
	}
	composite := make([]bool, limit+1)
	var out []uint64
	for i := uint64(3); i <= limit; i += 2 {
		if composite[i] {
			continue
		}
		out = append(out, i)
		for j := i * i; j <= limit; j += 2 * i {
			composite[j] = true
		}
	}
	return out
}

func isqrt(n uint64) uint64 {
	r := uint64(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}

var errCacheMismatch = errors.New("sieve cache bounds mismatch")

// 缓存格式：magic(4) | lower(8) | upper(8) | zstd(位图，小端 uint64 序列)。
func loadCache(path string, lower, upper uint64) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	br := bufio.NewReader(f)

	var hdr struct {
		Magic [4]byte
		Lower uint64
		Upper uint64
	}
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Magic != cacheMagic {
		return nil, fmt.Errorf("%w: bad magic", errCacheMismatch)
	}
	if hdr.Lower != lower || hdr.Upper != upper {
		return nil, errCacheMismatch
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	bits := make([]uint64, (oddCount(lower, upper)+63)/64)
	if err := binary.Read(dec, binary.LittleEndian, bits); err != nil {
		return nil, err
	}
	// 尾部不得有多余数据
	if n, _ := dec.Read(make([]byte, 1)); n != 0 {
		return nil, fmt.Errorf("%w: trailing data", errCacheMismatch)
	}
	return bits, nil
}

// saveCache 以同目录临时文件 + rename 原子写入缓存。
func saveCache(path string, lower, upper uint64, bits []uint64) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-sieve-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	bw := bufio.NewWriter(tmp)
	hdr := struct {
		Magic [4]byte
		Lower uint64
		Upper uint64
	}{cacheMagic, lower, upper}
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return fail(err)
	}
	enc, err := zstd.NewWriter(bw)
	if err != nil {
		return fail(err)
	}
	if err := binary.Write(enc, binary.LittleEndian, bits); err != nil {
		_ = enc.Close()
		return fail(err)
	}
	if err := enc.Close(); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
