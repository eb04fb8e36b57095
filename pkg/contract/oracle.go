package contract

import "context"

// Oracle: 素性判定（黑盒）。
// 约束：纯函数；是否可并发调用由实现通过 ConcurrencySafe 声明，未声明者由编排层串行化。
type Oracle interface {
	IsPrime(n uint64) bool
}

// ConcurrencySafe: 可选扩展。返回 true 表示 IsPrime 可被多个 worker 同时调用。
type ConcurrencySafe interface {
	ConcurrencySafe() bool
}

// ProgressFunc: 进度回调，percent ∈ [0,100]。
type ProgressFunc func(percent float64)

// Accelerator: 预计算区间表（可选加速）。
// 约束：
//  1. Init 在扫描开始前调用一次，覆盖 [lower, upper]；
//  2. Init 完成后 Covers/IsPrime 只读，可并发调用；
//  3. 区间外的查询由调用方回落到通用 Oracle；
//  4. Destroy 释放表，之后 Covers 恒为 false。
type Accelerator interface {
	Init(ctx context.Context, lower, upper uint64, progress ProgressFunc) error
	Bounds() (lower, upper uint64)
	Covers(n uint64) bool
	IsPrime(n uint64) bool
	Destroy()
}
