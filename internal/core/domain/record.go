// Package domain file: internal/core/domain/record.go
package domain

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ValueKind 标识单元格值的类型
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value 是一个单元格的带标签值 (string | number | boolean | null)。
// 零值即 Null。
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumber 对 Int 和 Float 都返回 true
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// Interface 返回编码器 (JSON / BSON / Firebase) 可直接使用的 Go 值，Null 返回 nil。
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// String 返回值的文本形式，Null 为空串。
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Record 是一行数据：列名 -> 值。表头中的每一列都存在，空单元格为 Null。
type Record map[string]Value

// Map 把 Record 转成 map[string]any，nullValue 用来替换 Null 单元格
// (传 nil 即保持为 nil)。
func (r Record) Map(nullValue any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		if v.IsNull() {
			out[k] = nullValue
			continue
		}
		out[k] = v.Interface()
	}
	return out
}

// SourceFile 描述一个待迁移的源文件及其目标集合
type SourceFile struct {
	Path       string
	Collection string
}

// NewSourceFile 根据路径推导目标集合名
func NewSourceFile(path string) SourceFile {
	return SourceFile{Path: path, Collection: CollectionName(path)}
}

// CollectionName 返回文件的基本名并去掉最后一个扩展名:
// "a.csv" -> "a", "a.b.csv" -> "a.b"。
// 不同目录下同名的文件会落到同一个集合。
func CollectionName(path string) string {
	// 兼容 Windows 风格分隔符
	base := filepath.Base(strings.ReplaceAll(path, `\`, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MigrationReport 是单个文件迁移完成后的结果
type MigrationReport struct {
	Path       string
	Collection string
	Rows       int
	Keys       []string
	Duration   time.Duration
}
