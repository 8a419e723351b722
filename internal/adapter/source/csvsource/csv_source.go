// Package csvsource file: internal/adapter/source/csvsource/csv_source.go
//
// 读取带表头的 CSV 文件，并按列推断单元格类型。
package csvsource

import (
	"CSVMigrator/internal/core/domain"
	"CSVMigrator/internal/core/port"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const utf8BOM = "\uFEFF"

// Opener 按位置 (路径或 URL) 打开源文件
type Opener interface {
	Open(location string) (io.ReadCloser, error)
}

// Table 是解析后的完整文件
type Table struct {
	Header []string
	Rows   []domain.Record
	Kinds  map[string]domain.ValueKind
}

// nullMarkers 中的单元格 (去掉首尾空白后) 视为空值
var nullMarkers = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// ParseFile 打开 location 并解析。打开或解析失败都归为 port.ErrDataFormat。
func ParseFile(opener Opener, location string) (*Table, error) {
	rc, err := opener.Open(location)
	if err != nil {
		return nil, &port.MigrationError{Kind: port.ErrDataFormat, Path: location, Err: err}
	}
	defer rc.Close()

	table, err := Parse(rc)
	if err != nil {
		return nil, &port.MigrationError{Kind: port.ErrDataFormat, Path: location, Err: err}
	}
	return table, nil
}

// Parse 读取整个 CSV。第一行必须是表头；每一列的类型由该列全部非空单元格共同决定。
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("缺少表头行")
	}
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var raw [][]string
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析 CSV 失败: %w", err)
		}
		if len(fields) > len(header) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("第 %d 行有 %d 个字段，但表头只有 %d 列", line, len(fields), len(header))
		}
		raw = append(raw, fields)
	}

	kinds := make(map[string]domain.ValueKind, len(header))
	for col, name := range header {
		kinds[name] = inferColumn(raw, col)
	}

	rows := make([]domain.Record, 0, len(raw))
	for _, fields := range raw {
		rec := make(domain.Record, len(header))
		for col, name := range header {
			cell := ""
			if col < len(fields) {
				cell = fields[col]
			}
			rec[name] = convert(cell, kinds[name])
		}
		rows = append(rows, rec)
	}

	return &Table{Header: header, Rows: rows, Kinds: kinds}, nil
}

func checkHeader(header []string) error {
	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("表头第 %d 列为空", i+1)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("表头列名重复: '%s'", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func isNull(cell string) bool {
	_, ok := nullMarkers[strings.TrimSpace(cell)]
	return ok
}

// inferColumn 返回能容纳该列全部非空单元格的最窄类型。全空的列视为字符串列。
func inferColumn(raw [][]string, col int) domain.ValueKind {
	allInt, allFloat, allBool := true, true, true
	nonEmpty := 0
	for _, fields := range raw {
		if col >= len(fields) || isNull(fields[col]) {
			continue
		}
		nonEmpty++
		cell := strings.TrimSpace(fields[col])
		if allInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, ok := parseFloat(cell); !ok {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(cell); !ok {
				allBool = false
			}
		}
		if !allInt && !allFloat && !allBool {
			return domain.KindString
		}
	}
	switch {
	case nonEmpty == 0:
		return domain.KindString
	case allInt:
		return domain.KindInt
	case allFloat:
		return domain.KindFloat
	case allBool:
		return domain.KindBool
	default:
		return domain.KindString
	}
}

// convert 按列类型转换单元格。调用前该列已通过推断，因此解析不会失败。
func convert(cell string, kind domain.ValueKind) domain.Value {
	if isNull(cell) {
		return domain.Null()
	}
	trimmed := strings.TrimSpace(cell)
	switch kind {
	case domain.KindInt:
		i, _ := strconv.ParseInt(trimmed, 10, 64)
		return domain.Int(i)
	case domain.KindFloat:
		f, _ := parseFloat(trimmed)
		return domain.Float(f)
	case domain.KindBool:
		b, _ := parseBool(trimmed)
		return domain.Bool(b)
	default:
		return domain.String(cell)
	}
}

// parseFloat 只接受有限的十进制数，NaN / Inf 无法写入 JSON。
func parseFloat(s string) (float64, bool) {
	if strings.HasPrefix(strings.TrimLeft(s, "+-"), "0x") || strings.HasPrefix(strings.TrimLeft(s, "+-"), "0X") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	default:
		return false, false
	}
}
