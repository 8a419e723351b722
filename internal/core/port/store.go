// Package port file: internal/core/port/store.go
package port

import (
	"CSVMigrator/internal/core/domain"
	"context"
)

// Node 是远端层级数据库中的一个命名位置 (集合节点)。
type Node interface {
	// Path 返回节点路径
	Path() string

	// Push 在节点下申请一个新的唯一子键，并把记录一次性写到该子键上。
	// 返回远端生成的子键。
	Push(ctx context.Context, rec domain.Record) (string, error)
}

// Store 是远端层级键值数据库的接口定义。迁移只使用两个原语：
// 按路径引用节点，以及在节点下生成子键并写入。
type Store interface {
	// Ref 按路径引用一个节点，不产生网络调用
	Ref(path string) Node

	// HealthCheck 检查存储的连通性
	HealthCheck(ctx context.Context) error

	// Type 返回适配器的类型标识符
	Type() string

	// Close 释放连接
	Close() error
}
