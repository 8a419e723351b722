// Package sqlite — 基于本地 SQLite 文件的层级键值存储
// internal/adapter/datasource/sqlite/store.go
package sqlite

import (
	"CSVMigrator/internal/core/domain"
	"CSVMigrator/internal/core/port"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// 断言 *Store 实现 port.Store 接口，编译期校验
var _ port.Store = (*Store)(nil)

const createNodesTable = `
    CREATE TABLE IF NOT EXISTS _nodes(
        path TEXT NOT NULL,
        key TEXT NOT NULL,
        value TEXT NOT NULL,
        created_at TIMESTAMP NOT NULL,
        PRIMARY KEY (path, key)
    );`

const insertNode = `INSERT INTO _nodes (path, key, value, created_at) VALUES (?, ?, ?, ?)`

// Store 把每个集合节点的子记录存进同一张 _nodes 表，
// 子键由 UUIDv7 生成，按时间有序且唯一。
type Store struct {
	db     *sql.DB
	newKey func() (string, error)
}

// Child 是节点下的一条子记录
type Child struct {
	Key   string
	Value map[string]any
}

// Open 打开 (或创建) SQLite 文件并初始化表结构
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &port.MigrationError{Kind: port.ErrConnection, Err: fmt.Errorf("打开 SQLite 数据库 '%s' 失败: %w", path, err)}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &port.MigrationError{Kind: port.ErrConnection, Err: fmt.Errorf("连接 SQLite 数据库 '%s' (Ping) 失败: %w", path, err)}
	}
	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("SQLite 存储已就绪", "path", path)
	return s, nil
}

// New 在已有连接上初始化存储
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, createNodesTable); err != nil {
		return nil, &port.MigrationError{Kind: port.ErrConnection, Err: fmt.Errorf("创建 '_nodes' 表失败: %w", err)}
	}
	return &Store{db: db, newKey: newUUIDKey}, nil
}

func newUUIDKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Type 返回适配器类型
func (s *Store) Type() string {
	return "sqlite"
}

// Ref 引用一个节点
func (s *Store) Ref(path string) port.Node {
	return &node{store: s, path: path}
}

// HealthCheck 检查数据库连接
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &port.MigrationError{Kind: port.ErrConnection, Err: err}
	}
	return nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// Count 返回节点下的子记录数
func (s *Store) Count(ctx context.Context, path string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _nodes WHERE path = ?`, path).Scan(&n)
	return n, err
}

// Children 按写入顺序返回节点下的全部子记录
func (s *Store) Children(ctx context.Context, path string) ([]Child, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM _nodes WHERE path = ? ORDER BY rowid`, path)
	if err != nil {
		return nil, fmt.Errorf("查询节点 '%s' 失败: %w", path, err)
	}
	defer rows.Close()

	var children []Child
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("扫描节点 '%s' 的子记录失败: %w", path, err)
		}
		value := make(map[string]any)
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("解码子记录 '%s/%s' 失败: %w", path, key, err)
		}
		children = append(children, Child{Key: key, Value: value})
	}
	return children, rows.Err()
}

type node struct {
	store *Store
	path  string
}

func (n *node) Path() string { return n.path }

// Push 生成子键并插入一行，单条 INSERT 即是一次原子写入
func (n *node) Push(ctx context.Context, rec domain.Record) (string, error) {
	key, err := n.store.newKey()
	if err != nil {
		return "", &port.MigrationError{Kind: port.ErrWrite, Err: fmt.Errorf("生成子键失败: %w", err)}
	}
	data, err := json.Marshal(rec.Map(nil))
	if err != nil {
		return "", &port.MigrationError{Kind: port.ErrWrite, Err: fmt.Errorf("编码记录失败: %w", err)}
	}
	if _, err := n.store.db.ExecContext(ctx, insertNode, n.path, key, string(data), time.Now().UTC()); err != nil {
		return "", &port.MigrationError{Kind: classifyExecError(err), Err: err}
	}
	return key, nil
}

// classifyExecError 区分连接层错误和写入被拒
func classifyExecError(err error) error {
	switch {
	case errors.Is(err, sql.ErrConnDone),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return port.ErrConnection
	default:
		return port.ErrWrite
	}
}
