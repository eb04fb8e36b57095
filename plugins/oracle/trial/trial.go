package trial

import "primescan/pkg/contract"

// Options: 当前无可调项。
type Options struct{}

// Oracle 以试除法判定素性（到 √n 为止）。慢，但实现显然正确，用作参考与交叉校验。
type Oracle struct{}

// New 创建 Oracle。
func New(_ *Options) *Oracle { return &Oracle{} }

var (
	_ contract.Oracle          = (*Oracle)(nil)
	_ contract.ConcurrencySafe = (*Oracle)(nil)
)

func (*Oracle) ConcurrencySafe() bool { return true }

func (*Oracle) IsPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n < 4 {
		return true
	}
	if n%2 == 0 || n%3 == 0 {
		return false
	}
	// 6k±1
	for d := uint64(5); d <= n/d; d += 6 {
		if n%d == 0 || n%(d+2) == 0 {
			return false
		}
	}
	return true
}
