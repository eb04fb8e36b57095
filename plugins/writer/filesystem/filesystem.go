package filesystem

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"primescan/pkg/contract"
)

// DefaultFileName: 报告文件名模板。{name} 为输入文件基名，{id} 为报告 ID。
const DefaultFileName = "{name}.result.json"

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// FileName: 相对 OutputDir 的文件名模板，可含子目录；默认 DefaultFileName。
	FileName string `json:"file_name,omitempty"`
	// Atomic: 是否使用原子替换（同目录临时文件 + rename）。
	// 默认值：true。未提供该字段时采用原子写；显式 false 可关闭。
	Atomic *bool `json:"atomic,omitempty"`
	// Indent: 是否缩进 JSON；默认 true。
	Indent *bool `json:"indent,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用实现/平台默认。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
}

// FS 将报告以 JSON 写入文件系统。
type FS struct {
	root   string
	name   string
	atomic bool
	indent bool
	permF  os.FileMode
	permD  os.FileMode
}

// New 创建文件系统 Writer 实现。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("%w: fs writer requires output_dir", contract.ErrInvalidInput)
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	name := opts.FileName
	if strings.TrimSpace(name) == "" {
		name = DefaultFileName
	}
	atomic := true
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	indent := true
	if opts.Indent != nil {
		indent = *opts.Indent
	}
	return &FS{root: opts.OutputDir, name: name, atomic: atomic, indent: indent, permF: pf, permD: pd}, nil
}

var _ contract.ResultWriter = (*FS)(nil)

// Write 将报告编码为 JSON，写入由模板映射的目标路径。
func (w *FS) Write(ctx context.Context, rep contract.Report) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dest, err := w.Path(rep)
	if err != nil {
		return err
	}
	var data []byte
	if w.indent {
		data, err = json.MarshalIndent(rep, "", "  ")
	} else {
		data, err = json.Marshal(rep)
	}
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, bytes.NewReader(data))
	}
	return w.writeOverwrite(ctx, dest, bytes.NewReader(data))
}

// Path 返回 rep 将被写入的路径。
func (w *FS) Path(rep contract.Report) (string, error) {
	return w.mapPath(w.fileName(rep))
}

func (w *FS) fileName(rep contract.Report) string {
	base := path.Base(contract.NormalizeInput(rep.Input))
	if base == "." || base == "/" {
		base = "input"
	}
	r := strings.NewReplacer("{name}", base, "{id}", rep.ID)
	return r.Replace(w.name)
}

// mapPath: Clean + Join + 越界校验。
func (w *FS) mapPath(name string) (string, error) {
	rel := filepath.Clean(name)
	// 禁止绝对路径、父级逃逸、Windows 卷名
	if rel == "." || rel == "" {
		return "", contract.ErrPathInvalid
	}
	if filepath.IsAbs(rel) {
		return "", contract.ErrPathInvalid
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	if vol := filepath.VolumeName(rel); vol != "" {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	// 目标权限：尽量与期望一致
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriter(tmp)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 平台特定的原子替换（或最佳努力）
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}
	return cr.r.Read(p)
}
