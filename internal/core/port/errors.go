// Package port file: internal/core/port/errors.go
package port

import (
	"errors"
	"fmt"
)

// 迁移错误分类。所有错误都不在本地恢复，直接终止整次运行。
var (
	ErrAuthentication = errors.New("凭证缺失或无效")
	ErrConnection     = errors.New("数据库不可达或未授权")
	ErrDataFormat     = errors.New("源文件缺失或无法解析")
	ErrWrite          = errors.New("远端拒绝写入")
)

// MigrationError 携带出错位置，并通过 Kind 与上面的哨兵错误匹配。
type MigrationError struct {
	Kind       error
	Path       string
	Collection string
	Row        int // 从 1 开始的数据行号，0 表示与具体行无关
	Err        error
}

func (e *MigrationError) Error() string {
	switch {
	case e.Row > 0:
		return fmt.Sprintf("%v: 文件 '%s' 第 %d 行写入节点 '%s' 失败: %v", e.Kind, e.Path, e.Row, e.Collection, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%v: 文件 '%s': %v", e.Kind, e.Path, e.Err)
	default:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
}

func (e *MigrationError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf 返回 err 所属的分类哨兵，无法归类时返回 nil。
func KindOf(err error) error {
	for _, kind := range []error{ErrAuthentication, ErrConnection, ErrDataFormat, ErrWrite} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName 返回用于日志和指标标签的分类名
func KindName(err error) string {
	switch KindOf(err) {
	case ErrAuthentication:
		return "authentication"
	case ErrConnection:
		return "connection"
	case ErrDataFormat:
		return "data_format"
	case ErrWrite:
		return "write"
	default:
		return "unknown"
	}
}
