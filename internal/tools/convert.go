package tools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"primescan/pkg/contract"
	sfs "primescan/plugins/source/filesystem"
)

// Convert 读取空白分隔的十进制文本，按 width 字节小端写出。
// 无法解析或超出宽度的记号写为 0；返回写出的元素数。
func Convert(ctx context.Context, r io.Reader, w io.Writer, width int) (int, error) {
	if width < 1 || width > 8 {
		return 0, fmt.Errorf("%w: element width %d out of range [1,8]", contract.ErrInvalidInput, width)
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)
	bw := bufio.NewWriter(w)
	elem := make([]byte, width)
	n := 0
	for sc.Scan() {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		v, err := strconv.ParseUint(sc.Text(), 10, width*8)
		if err != nil {
			v = 0
		}
		sfs.Encode(elem, v)
		if _, err := bw.Write(elem); err != nil {
			return n, err
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, err
	}
	return n, bw.Flush()
}

// DefaultOutput 返回 in 同目录下的 bin_<name>。
func DefaultOutput(in string) string {
	return filepath.Join(filepath.Dir(in), "bin_"+filepath.Base(in))
}

// ConvertFile 转换文本文件 in 到 out（out 为空时使用 DefaultOutput）；已存在的 out 被截断重写。
func ConvertFile(ctx context.Context, in, out string, width int) (string, int, error) {
	if out == "" {
		out = DefaultOutput(in)
	}
	if filepath.Clean(out) == filepath.Clean(in) {
		return out, 0, fmt.Errorf("%w: output %s would overwrite input", contract.ErrInvalidInput, out)
	}
	f, err := os.Open(in)
	if err != nil {
		if os.IsNotExist(err) {
			return out, 0, fmt.Errorf("%w: %s", contract.ErrInputMissing, in)
		}
		return out, 0, err
	}
	defer f.Close()
	dst, err := os.Create(out)
	if err != nil {
		return out, 0, err
	}
	n, err := Convert(ctx, f, dst, width)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return out, n, err
}
