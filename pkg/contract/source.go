package contract

import "context"

// NumberSource: 定宽小端无符号整数的随机访问读取。
// 约束：
//  1. 偏移为字节偏移，须按 Width 对齐；
//  2. ReadAt/ReadBlock 可被多个 worker 并发调用（位置读，不共享游标）；
//  3. 尾部不足一个元素的字节被忽略（Size 返回原始长度，由分区层截断）。
type NumberSource interface {
	Name() string
	Size() int64
	Width() int
	ReadAt(off int64) (uint64, error)
	// ReadBlock 自 off 起读取至多 len(dst) 个完整元素，返回实际个数。
	ReadBlock(off int64, dst []uint64) (int, error)
	Close() error
}

// SourceOpener: 按路径打开 NumberSource。
type SourceOpener interface {
	Open(ctx context.Context, path string, width int) (NumberSource, error)
}
