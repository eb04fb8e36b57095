package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"primescan/pkg/contract"
)

// Options 为文件系统 NumberSource 的可选配置（最小必要）。
type Options struct {
	// BufSize 为单次 ReadAt 的最大字节数。默认 64KiB；更大的 dst 拆分为多次位置读。
	BufSize int `json:"buf_size"`
}

// FileSystem 按路径打开定宽小端整数文件。
type FileSystem struct {
	bufSize int
}

// New 创建 FileSystem 打开器。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	return &FileSystem{bufSize: b}
}

var _ contract.SourceOpener = (*FileSystem)(nil)

// Open 打开 path；文件不存在返回 ErrInputMissing，目录/非常规文件返回 ErrInvalidInput。
func (r *FileSystem) Open(ctx context.Context, path string, width int) (contract.NumberSource, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if width < 1 || width > 8 {
		return nil, fmt.Errorf("%w: element width %d out of range [1,8]", contract.ErrInvalidInput, width)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", contract.ErrInputMissing, path)
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", contract.ErrInvalidInput, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buf := r.bufSize - r.bufSize%width
	if buf < width {
		buf = width
	}
	src := &File{
		f:     f,
		name:  contract.NormalizeInput(path),
		size:  info.Size(),
		width: width,
	}
	src.pool.New = func() any {
		b := make([]byte, buf)
		return &b
	}
	return src, nil
}

// File 是基于 os.File.ReadAt 的 NumberSource；位置读不共享游标，可被多个 worker 并发使用。
type File struct {
	f     *os.File
	name  string
	size  int64
	width int
	pool  sync.Pool
}

var _ contract.NumberSource = (*File)(nil)

func (s *File) Name() string { return s.name }
func (s *File) Size() int64  { return s.size }
func (s *File) Width() int   { return s.width }

// ReadAt 读取 off 处的单个元素。
func (s *File) ReadAt(off int64) (uint64, error) {
	if off < 0 || off%int64(s.width) != 0 {
		return 0, fmt.Errorf("%w: offset %d not aligned to width %d", contract.ErrInvalidInput, off, s.width)
	}
	if off+int64(s.width) > s.size {
		return 0, io.EOF
	}
	var b [8]byte
	if _, err := s.f.ReadAt(b[:s.width], off); err != nil {
		return 0, err
	}
	return Decode(b[:s.width]), nil
}

// ReadBlock 自 off 起读取至多 len(dst) 个完整元素；到达文件尾时返回实际个数且不报错。
func (s *File) ReadBlock(off int64, dst []uint64) (int, error) {
	w := int64(s.width)
	if off < 0 || off%w != 0 {
		return 0, fmt.Errorf("%w: offset %d not aligned to width %d", contract.ErrInvalidInput, off, s.width)
	}
	avail := (s.size - off) / w
	if avail <= 0 {
		return 0, nil
	}
	want := int64(len(dst))
	if want > avail {
		want = avail
	}

	bp := s.pool.Get().(*[]byte)
	defer s.pool.Put(bp)
	buf := *bp
	per := int64(len(buf)) / w

	done := int64(0)
	for done < want {
		n := want - done
		if n > per {
			n = per
		}
		chunk := buf[:n*w]
		got, err := s.f.ReadAt(chunk, off+done*w)
		if err != nil && !(errors.Is(err, io.EOF) && int64(got) == n*w) {
			return int(done), err
		}
		for i := int64(0); i < n; i++ {
			dst[done+i] = Decode(chunk[i*w : (i+1)*w])
		}
		done += n
	}
	return int(done), nil
}

func (s *File) Close() error { return s.f.Close() }

// Decode 将小端字节（1..8 字节）解码为无符号整数。
func Decode(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Encode 将 v 的低 len(b) 字节以小端写入 b；超出宽度的高位被截断。
func Encode(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}
