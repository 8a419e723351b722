// Package firebase file: internal/adapter/datasource/firebase/store.go
//
// Firebase Realtime Database 适配器。连接在进程启动时建立一次，之后只用到
// 两个原语：按路径引用节点 (db.Client.NewRef)，以及在节点下生成子键并写入 (db.Ref.Push)。
package firebase

import (
	"CSVMigrator/internal/core/domain"
	"CSVMigrator/internal/core/port"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/errorutils"
	"google.golang.org/api/option"
)

// 断言 *Store 实现 port.Store 接口，编译期校验
var _ port.Store = (*Store)(nil)

// Config 是建立连接所需的全部参数
type Config struct {
	CredentialsFile string
	DatabaseURL     string
	// NullAsEmpty 为 true 时空单元格写成 ""。RTDB 会丢弃值为 null 的子节点，
	// 这样才能保证每一列都出现在记录里。
	NullAsEmpty bool
}

// pushFunc 在 path 下生成子键并写入 v，返回子键
type pushFunc func(ctx context.Context, path string, v any) (string, error)

// Store 包装 *db.Client
type Store struct {
	client      *db.Client
	push        pushFunc
	nullAsEmpty bool
}

// Open 读取服务账号凭证并初始化应用与数据库客户端。任何失败都归为 port.ErrAuthentication。
func Open(ctx context.Context, cfg Config) (*Store, error) {
	raw, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, authError(fmt.Errorf("读取凭证文件 '%s' 失败: %w", cfg.CredentialsFile, err))
	}
	if !json.Valid(raw) {
		return nil, authError(fmt.Errorf("凭证文件 '%s' 不是有效的 JSON", cfg.CredentialsFile))
	}

	app, err := fb.NewApp(ctx, &fb.Config{DatabaseURL: cfg.DatabaseURL}, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, authError(fmt.Errorf("初始化 Firebase 应用失败: %w", err))
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, authError(fmt.Errorf("初始化 Realtime Database 客户端失败: %w", err))
	}

	slog.Info("Firebase Realtime Database 客户端已初始化", "database_url", cfg.DatabaseURL)
	s := &Store{client: client, nullAsEmpty: cfg.NullAsEmpty}
	s.push = func(ctx context.Context, path string, v any) (string, error) {
		ref, err := client.NewRef(path).Push(ctx, v)
		if err != nil {
			return "", err
		}
		return ref.Key, nil
	}
	return s, nil
}

func authError(err error) error {
	return &port.MigrationError{Kind: port.ErrAuthentication, Err: err}
}

// Type 返回适配器类型
func (s *Store) Type() string {
	return "firebase_rtdb"
}

// Ref 引用一个节点，不产生网络调用
func (s *Store) Ref(path string) port.Node {
	return &node{store: s, path: path}
}

// HealthCheck 只确认客户端已初始化。RTDB 的读写权限可以不同，
// 连通性问题会在第一次写入时以 port.ErrConnection 暴露出来。
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.push == nil {
		return &port.MigrationError{Kind: port.ErrConnection, Err: errors.New("Firebase 客户端未初始化")}
	}
	return ctx.Err()
}

// Close 客户端无需显式释放
func (s *Store) Close() error {
	return nil
}

type node struct {
	store *Store
	path  string
}

func (n *node) Path() string { return n.path }

// Push 调用远端的子键生成器并把记录作为初始值写入，一次 POST 完成。
func (n *node) Push(ctx context.Context, rec domain.Record) (string, error) {
	var nullValue any
	if n.store.nullAsEmpty {
		nullValue = ""
	}
	key, err := n.store.push(ctx, n.path, rec.Map(nullValue))
	if err != nil {
		return "", &port.MigrationError{Kind: classify(err), Err: err}
	}
	return key, nil
}

// classify 把客户端错误映射到迁移错误分类
func classify(err error) error {
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errorutils.IsUnauthenticated(err),
		errorutils.IsPermissionDenied(err),
		errorutils.IsUnavailable(err),
		errorutils.IsDeadlineExceeded(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr),
		errors.As(err, &urlErr):
		return port.ErrConnection
	default:
		return port.ErrWrite
	}
}
