package set

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"primescan/pkg/contract"
)

func TestInlineAndFile(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "p.txt")
	if err := os.WriteFile(fp, []byte("7 11\n13\t17\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	o, err := New(&Options{Primes: []uint64{2, 3, 7}, Path: fp})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if o.Len() != 6 {
		t.Fatalf("并集大小应为 6，得到 %d", o.Len())
	}
	for _, n := range []uint64{2, 3, 7, 11, 13, 17} {
		if !o.IsPrime(n) {
			t.Fatalf("%d 应在表内", n)
		}
	}
	if o.IsPrime(5) {
		t.Fatalf("5 不在表内，应判为非素数")
	}
}

func TestBadFile(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "p.txt")
	_ = os.WriteFile(fp, []byte("7 x11"), 0o644)
	if _, err := New(&Options{Path: fp}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("非法数字应报 ErrInvalidInput: %v", err)
	}
	if _, err := New(&Options{Path: filepath.Join(t.TempDir(), "none")}); err == nil {
		t.Fatalf("缺失文件应报错")
	}
	o, err := New(nil)
	if err != nil || o.Len() != 0 {
		t.Fatalf("nil 选项应得到空表: %v", err)
	}
}
