package tools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"primescan/pkg/contract"
)

// Query 逐行读取数字并回答 Prime/Composite，读到 "exit" 或输入结束时返回。
// 无法解析的行被忽略。返回已回答的个数。
func Query(ctx context.Context, r io.Reader, w io.Writer, orc contract.Oracle) (int, error) {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "exit" {
			return n, nil
		}
		v, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			continue
		}
		answer := "Composite"
		if orc.IsPrime(v) {
			answer = "Prime"
		}
		if _, err := fmt.Fprintln(w, answer); err != nil {
			return n, err
		}
		n++
	}
	return n, sc.Err()
}
