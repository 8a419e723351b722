// Package migration file: internal/service/migration/runner.go
//
// Runner 按顺序把每个 CSV 文件的每一行写成集合节点下的一个新子记录。
// 逐文件、逐行串行执行，任何错误都立即终止整次运行：已完成的文件保持已写入，
// 出错文件此前写入的行也不会回滚，后续文件不再处理。
package migration

import (
	"CSVMigrator/internal/adapter/source/csvsource"
	"CSVMigrator/internal/core/domain"
	"CSVMigrator/internal/core/port"
	"CSVMigrator/internal/observe"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// Runner 是迁移执行器
type Runner struct {
	store   port.Store
	opener  csvsource.Opener
	out     io.Writer
	limiter *rate.Limiter
}

// Option 配置 Runner
type Option func(*Runner)

// WithOutput 设置完成提示的输出位置，默认 os.Stdout
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithWriteRate 限制每秒写入次数，perSecond <= 0 表示不限速
func WithWriteRate(perSecond float64, burst int) Option {
	return func(r *Runner) {
		if perSecond <= 0 {
			r.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewRunner 创建 Runner。store 必须已经打开。
func NewRunner(store port.Store, opener csvsource.Opener, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		opener: opener,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 按列表顺序迁移所有文件，返回已成功完成的文件报告。
// 出错时返回的报告只包含出错之前完成的文件。
func (r *Runner) Run(ctx context.Context, paths []string) ([]domain.MigrationReport, error) {
	reports := make([]domain.MigrationReport, 0, len(paths))
	for _, path := range paths {
		src := domain.NewSourceFile(path)
		report, err := r.migrateFile(ctx, src)
		if err != nil {
			observe.MigrationFailures.WithLabelValues(port.KindName(err)).Inc()
			slog.Error("迁移中止", "path", src.Path, "node", src.Collection, "kind", port.KindName(err), "error", err)
			return reports, err
		}
		reports = append(reports, *report)
		observe.FilesMigrated.Inc()

		fmt.Fprintf(r.out, "Data from %s migrated successfully to node '%s'!\n", src.Path, src.Collection)
	}
	return reports, nil
}

func (r *Runner) migrateFile(ctx context.Context, src domain.SourceFile) (*domain.MigrationReport, error) {
	start := time.Now()
	slog.Info("开始迁移文件", "path", src.Path, "node", src.Collection)

	table, err := csvsource.ParseFile(r.opener, src.Path)
	if err != nil {
		return nil, locate(err, port.ErrDataFormat, src, 0)
	}
	slog.Debug("文件解析完成", "path", src.Path, "rows", len(table.Rows), "columns", len(table.Header))

	node := r.store.Ref(src.Collection)
	keys := make([]string, 0, len(table.Rows))
	for i, rec := range table.Rows {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("等待写入配额失败 (文件 '%s' 第 %d 行): %w", src.Path, i+1, err)
			}
		}

		writeStart := time.Now()
		key, err := node.Push(ctx, rec)
		observe.WriteDuration.Observe(time.Since(writeStart).Seconds())
		if err != nil {
			return nil, locate(err, port.ErrWrite, src, i+1)
		}
		observe.RowsWritten.WithLabelValues(src.Collection).Inc()
		slog.Debug("行已写入", "node", node.Path(), "key", key, "row", i+1)
		keys = append(keys, key)
	}

	report := &domain.MigrationReport{
		Path:       src.Path,
		Collection: src.Collection,
		Rows:       len(keys),
		Keys:       keys,
		Duration:   time.Since(start),
	}
	slog.Info("文件迁移完成", "path", src.Path, "node", src.Collection, "rows", report.Rows, "duration", report.Duration)
	return report, nil
}

// locate 为错误补上文件、节点和行号。已经分类的错误保持原分类，否则归为 fallback。
func locate(err error, fallback error, src domain.SourceFile, row int) error {
	var me *port.MigrationError
	if errors.As(err, &me) {
		located := *me
		located.Path = src.Path
		located.Collection = src.Collection
		located.Row = row
		return &located
	}
	return &port.MigrationError{Kind: fallback, Path: src.Path, Collection: src.Collection, Row: row, Err: err}
}
