package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"primescan/pkg/contract"
)

// Options: 控制台输出选项。
type Options struct {
	// Verbose: 在结果块前输出输入大小、线程数、是否加速与耗时。
	Verbose bool `json:"verbose"`
}

// Console 将结果 Run 以文本块打印到标准输出。
type Console struct {
	out     io.Writer
	verbose bool
}

// New 创建写往 stdout 的 Console。
func New(opts *Options) *Console { return NewTo(os.Stdout, opts) }

// NewTo 创建写往 w 的 Console（测试用）。
func NewTo(w io.Writer, opts *Options) *Console {
	c := &Console{out: w}
	if opts != nil {
		c.verbose = opts.Verbose
	}
	return c
}

var _ contract.ResultWriter = (*Console)(nil)

func (c *Console) Write(ctx context.Context, rep contract.Report) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	var sb strings.Builder
	if c.verbose {
		fmt.Fprintf(&sb, "Input: %s (%s, %d-byte elements)\n", rep.Input, humanize.IBytes(uint64(rep.SizeBytes)), rep.ElementWidth)
		fmt.Fprintf(&sb, "Threads used: %d\n", rep.Threads)
		fmt.Fprintf(&sb, "Accelerated: %s\n", yn(rep.Accelerated))
		fmt.Fprintf(&sb, "Stitched: %s\n", yn(rep.Stitched))
		fmt.Fprintf(&sb, "Time: %s\n\n", time.Duration(rep.DurationMS)*time.Millisecond)
	}
	if rep.Partial {
		fmt.Fprintf(&sb, "Partial result (%s interrupted):\n", rep.State)
	}
	if rep.Result.IsEmpty() {
		sb.WriteString("No primes found.\n\n")
	} else {
		sb.WriteString(rep.Result.String())
		sb.WriteString("\n\n")
	}
	_, err := io.WriteString(c.out, sb.String())
	return err
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}
