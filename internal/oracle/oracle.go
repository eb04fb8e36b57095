// Package oracle 组合素性判定：串行化、记忆化与区间表加速。
package oracle

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"primescan/pkg/contract"
)

// IsConcurrencySafe 报告 o 是否声明可并发调用。
func IsConcurrencySafe(o contract.Oracle) bool {
	cs, ok := o.(contract.ConcurrencySafe)
	return ok && cs.ConcurrencySafe()
}

// Locked 以互斥锁串行化未声明并发安全的实现。
type Locked struct {
	mu sync.Mutex
	o  contract.Oracle
}

func NewLocked(o contract.Oracle) *Locked { return &Locked{o: o} }

func (l *Locked) IsPrime(n uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.o.IsPrime(n)
}

func (*Locked) ConcurrencySafe() bool { return true }

// Cached 以 LRU 记忆判定结果。内部实现须可并发调用（必要时先包一层 Locked）。
type Cached struct {
	o      contract.Oracle
	cache  *lru.Cache[uint64, bool]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCached 创建容量为 size 的记忆化包装。
func NewCached(o contract.Oracle, size int) (*Cached, error) {
	c, err := lru.New[uint64, bool](size)
	if err != nil {
		return nil, err
	}
	return &Cached{o: o, cache: c}, nil
}

func (c *Cached) IsPrime(n uint64) bool {
	if v, ok := c.cache.Get(n); ok {
		c.hits.Add(1)
		return v
	}
	c.misses.Add(1)
	v := c.o.IsPrime(n)
	c.cache.Add(n, v)
	return v
}

func (c *Cached) ConcurrencySafe() bool { return IsConcurrencySafe(c.o) }

// Stats 返回命中与未命中次数。
func (c *Cached) Stats() (hits, misses uint64) { return c.hits.Load(), c.misses.Load() }

// Accelerated 区间内查表，区间外回落到 fallback。
type Accelerated struct {
	acc      contract.Accelerator
	fallback contract.Oracle
}

func NewAccelerated(acc contract.Accelerator, fallback contract.Oracle) *Accelerated {
	return &Accelerated{acc: acc, fallback: fallback}
}

func (a *Accelerated) IsPrime(n uint64) bool {
	if a.acc.Covers(n) {
		return a.acc.IsPrime(n)
	}
	return a.fallback.IsPrime(n)
}

func (a *Accelerated) ConcurrencySafe() bool { return IsConcurrencySafe(a.fallback) }

// CacheOf 在 Build 的组合结果中找出 LRU 记忆层；未启用缓存时返回 nil。
func CacheOf(o contract.Oracle) *Cached {
	switch v := o.(type) {
	case *Cached:
		return v
	case *Accelerated:
		return CacheOf(v.fallback)
	}
	return nil
}

// Build 组合最终 Oracle：
//  1. 未声明并发安全的 base 包一层 Locked；
//  2. cacheSize>0 时加 LRU 记忆；
//  3. acc 非 nil（且已 Init）时优先查表。
func Build(base contract.Oracle, acc contract.Accelerator, cacheSize int) (contract.Oracle, error) {
	o := base
	if !IsConcurrencySafe(o) {
		o = NewLocked(o)
	}
	if cacheSize > 0 {
		c, err := NewCached(o, cacheSize)
		if err != nil {
			return nil, err
		}
		o = c
	}
	if acc != nil {
		o = NewAccelerated(acc, o)
	}
	return o, nil
}
