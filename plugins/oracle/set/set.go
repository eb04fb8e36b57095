package set

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"primescan/pkg/contract"
)

// Options: 显式素数表（调试/确定性测试用）。Primes 与 Path 可同时提供，取并集。
type Options struct {
	// Primes: 内联素数列表。
	Primes []uint64 `json:"primes"`
	// Path: 以空白分隔的十进制数文本文件。
	Path string `json:"path"`
}

// Oracle 只把表内数视为素数；不做任何校验，表的正确性由调用方负责。
type Oracle struct {
	m map[uint64]struct{}
}

// New 构造 Oracle；Path 不可读或含非法数字时报错。
func New(opts *Options) (*Oracle, error) {
	o := &Oracle{m: make(map[uint64]struct{})}
	if opts == nil {
		return o, nil
	}
	for _, p := range opts.Primes {
		o.m[p] = struct{}{}
	}
	if opts.Path != "" {
		f, err := os.Open(opts.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		sc.Split(bufio.ScanWords)
		for sc.Scan() {
			v, err := strconv.ParseUint(sc.Text(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: set oracle %s: %v", contract.ErrInvalidInput, opts.Path, err)
			}
			o.m[v] = struct{}{}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	return o, nil
}

var (
	_ contract.Oracle          = (*Oracle)(nil)
	_ contract.ConcurrencySafe = (*Oracle)(nil)
)

// ConcurrencySafe: 构造后只读。
func (*Oracle) ConcurrencySafe() bool { return true }

func (o *Oracle) IsPrime(n uint64) bool {
	_, ok := o.m[n]
	return ok
}

// Len 返回表大小。
func (o *Oracle) Len() int { return len(o.m) }
