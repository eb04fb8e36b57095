package millerrabin

import (
	"math/bits"

	"primescan/pkg/contract"
)

// Options: 当前无可调项；保留结构以便严格解码拒绝未知字段。
type Options struct{}

// bases 对全部 64 位输入给出确定性结论。
var bases = [...]uint64{2, 325, 9375, 28178, 450775, 9780504, 1795265022}

// smallPrimes: 1000 以下的 168 个素数，用于试除预筛。
var smallPrimes = func() []uint64 {
	const limit = 1000
	composite := make([]bool, limit)
	out := make([]uint64, 0, 168)
	for i := 2; i < limit; i++ {
		if composite[i] {
			continue
		}
		out = append(out, uint64(i))
		for j := i * i; j < limit; j += i {
			composite[j] = true
		}
	}
	return out
}()

// Oracle 为确定性 Miller–Rabin 素性判定，无共享状态，可并发调用。
type Oracle struct{}

// New 创建 Oracle。
func New(_ *Options) *Oracle { return &Oracle{} }

var (
	_ contract.Oracle          = (*Oracle)(nil)
	_ contract.ConcurrencySafe = (*Oracle)(nil)
)

func (*Oracle) ConcurrencySafe() bool { return true }

// IsPrime 判定 n 是否为素数。
func (*Oracle) IsPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	for _, p := range smallPrimes {
		if n == p {
			return true
		}
		if n%p == 0 {
			return false
		}
	}
	// 无 1000 以下因子且小于 1000^2 即为素数
	if n < 1000*1000 {
		return true
	}

	d := n - 1
	s := bits.TrailingZeros64(d)
	d >>= uint(s)

	for _, a := range bases {
		a %= n
		if a == 0 {
			continue
		}
		x := powMod(a, d, n)
		if x == 1 || x == n-1 {
			continue
		}
		witness := true
		for r := 1; r < s; r++ {
			x = mulMod(x, x, n)
			if x == n-1 {
				witness = false
				break
			}
		}
		if witness {
			return false
		}
	}
	return true
}

func mulMod(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, m)
}

func powMod(b, e, m uint64) uint64 {
	r := uint64(1)
	b %= m
	for e > 0 {
		if e&1 == 1 {
			r = mulMod(r, b, m)
		}
		b = mulMod(b, b, m)
		e >>= 1
	}
	return r
}
