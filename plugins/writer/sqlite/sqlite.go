package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"primescan/pkg/contract"
)

// Options: 数据库路径（必需）。
type Options struct {
	Path string `json:"path"`
	// BusyTimeoutMS: 锁等待毫秒数；<=0 使用 5000。
	BusyTimeoutMS int `json:"busy_timeout_ms,omitempty"`
}

// Store 将每次扫描报告追加到 scans 表，形成结果历史。
// 值列以十进制文本保存，避免 uint64 高位在 database/sql 中溢出。
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id            TEXT PRIMARY KEY,
	input         TEXT NOT NULL,
	size_bytes    INTEGER NOT NULL,
	element_width INTEGER NOT NULL,
	threads       INTEGER NOT NULL,
	accelerated   INTEGER NOT NULL,
	stitched      INTEGER NOT NULL,
	partial       INTEGER NOT NULL,
	state         TEXT NOT NULL,
	first_value   TEXT NOT NULL,
	first_offset  INTEGER NOT NULL,
	last_value    TEXT NOT NULL,
	last_offset   INTEGER NOT NULL,
	length        INTEGER NOT NULL,
	started_at    TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scans_input ON scans(input);
CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);
`

// New 打开（或创建）数据库并初始化表结构。
func New(opts *Options) (*Store, error) {
	if opts == nil || strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("%w: sqlite writer requires path", contract.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	busy := opts.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", opts.Path, busy)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db, path: opts.Path}, nil
}

var _ contract.ResultWriter = (*Store)(nil)

// Write 插入一行；同 ID 重复写入覆盖旧行。
func (s *Store) Write(ctx context.Context, rep contract.Report) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO scans (
	id, input, size_bytes, element_width, threads, accelerated, stitched, partial, state,
	first_value, first_offset, last_value, last_offset, length, started_at, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.Input, rep.SizeBytes, rep.ElementWidth, rep.Threads,
		boolInt(rep.Accelerated), boolInt(rep.Stitched), boolInt(rep.Partial), string(rep.State),
		strconv.FormatUint(rep.Result.FirstValue, 10), int64(rep.Result.FirstOffset),
		strconv.FormatUint(rep.Result.LastValue, 10), int64(rep.Result.LastOffset),
		int64(rep.Result.Length), rep.StartedAt.UTC().Format(time.RFC3339Nano), rep.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert scan %s: %w", rep.ID, err)
	}
	return nil
}

// Recent 按开始时间倒序返回最多 limit 条报告；input 非空时只看该输入。
func (s *Store) Recent(ctx context.Context, input string, limit int) ([]contract.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, input, size_bytes, element_width, threads, accelerated, stitched, partial, state,
	first_value, first_offset, last_value, last_offset, length, started_at, duration_ms FROM scans`
	args := []any{}
	if input != "" {
		q += ` WHERE input = ?`
		args = append(args, input)
	}
	q += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contract.Report
	for rows.Next() {
		var (
			rep                   contract.Report
			acc, st, part         int
			state, fv, lv, starts string
			fo, lo, length        int64
		)
		if err := rows.Scan(&rep.ID, &rep.Input, &rep.SizeBytes, &rep.ElementWidth, &rep.Threads,
			&acc, &st, &part, &state, &fv, &fo, &lv, &lo, &length, &starts, &rep.DurationMS); err != nil {
			return nil, err
		}
		rep.Accelerated, rep.Stitched, rep.Partial = acc != 0, st != 0, part != 0
		rep.State = contract.State(state)
		if rep.Result.FirstValue, err = strconv.ParseUint(fv, 10, 64); err != nil {
			return nil, fmt.Errorf("scan %s first_value: %w", rep.ID, err)
		}
		if rep.Result.LastValue, err = strconv.ParseUint(lv, 10, 64); err != nil {
			return nil, fmt.Errorf("scan %s last_value: %w", rep.ID, err)
		}
		rep.Result.FirstOffset, rep.Result.LastOffset, rep.Result.Length = uint64(fo), uint64(lo), uint64(length)
		if rep.StartedAt, err = time.Parse(time.RFC3339Nano, starts); err != nil {
			return nil, fmt.Errorf("scan %s started_at: %w", rep.ID, err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// Path 返回数据库文件路径。
func (s *Store) Path() string { return s.path }

// Close 关闭数据库连接。
func (s *Store) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
