// file: internal/adapter/source/csvsource/csv_source_test.go
package csvsource

import (
	"CSVMigrator/internal/core/domain"
	"CSVMigrator/internal/core/port"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileOpener 直接按本地路径打开文件
type fileOpener struct{}

func (fileOpener) Open(location string) (io.ReadCloser, error) { return os.Open(location) }

func TestParse_InfersColumnKinds(t *testing.T) {
	input := "sku,qty,price,active,name\n" +
		"A-1,3,9.5,True,Widget\n" +
		"A-2,10,12,False,Gadget\n"

	table, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"sku", "qty", "price", "active", "name"}, table.Header)
	require.Len(t, table.Rows, 2)

	assert.Equal(t, domain.KindString, table.Kinds["sku"])
	assert.Equal(t, domain.KindInt, table.Kinds["qty"])
	assert.Equal(t, domain.KindFloat, table.Kinds["price"])
	assert.Equal(t, domain.KindBool, table.Kinds["active"])

	first := table.Rows[0]
	assert.Equal(t, int64(3), first["qty"].Interface())
	assert.Equal(t, 9.5, first["price"].Interface())
	assert.Equal(t, true, first["active"].Interface())
	assert.Equal(t, "Widget", first["name"].Interface())

	// 同一列里整数会被提升为浮点
	assert.Equal(t, 12.0, table.Rows[1]["price"].Interface())
}

func TestParse_EmptyCellKeepsColumn(t *testing.T) {
	input := "sku,qty,notes\nA-1,,\nA-2,4,NA\n"

	table, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	row := table.Rows[0]
	require.Contains(t, row, "qty")
	require.Contains(t, row, "notes")
	assert.True(t, row["qty"].IsNull())
	assert.True(t, row["notes"].IsNull())
	assert.True(t, table.Rows[1]["notes"].IsNull())
	assert.Equal(t, domain.KindInt, table.Kinds["qty"])
}

func TestParse_HeaderOnly(t *testing.T) {
	table, err := Parse(strings.NewReader("sku,qty\n"))
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
	assert.Equal(t, []string{"sku", "qty"}, table.Header)
}

func TestParse_ShortRowFilledWithNull(t *testing.T) {
	table, err := Parse(strings.NewReader("a,b,c\n1,2\n"))
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], 3)
	assert.True(t, table.Rows[0]["c"].IsNull())
}

func TestParse_StripsBOMAndKeepsQuotedValues(t *testing.T) {
	input := "\uFEFFname,comment\n\"Smith, J\",\"said \"\"hi\"\"\"\n"
	table, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "name", table.Header[0])
	assert.Equal(t, "Smith, J", table.Rows[0]["name"].String())
	assert.Equal(t, `said "hi"`, table.Rows[0]["comment"].String())
}

func TestParse_MixedColumnFallsBackToString(t *testing.T) {
	table, err := Parse(strings.NewReader("code\n007\nabc\ntrue\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.KindString, table.Kinds["code"])
	assert.Equal(t, "007", table.Rows[0]["code"].Interface())
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		msg   string
	}{
		{"empty input", "", "缺少表头行"},
		{"duplicate header", "a,a\n1,2\n", "重复"},
		{"blank header", "a,,c\n1,2,3\n", "为空"},
		{"too many fields", "a,b\n1,2,3\n", "第 2 行"},
		{"bad quoting", "a,b\n\"1,2\n", "解析 CSV 失败"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("ok", func(t *testing.T) {
		path := filepath.Join(dir, "stock.csv")
		require.NoError(t, os.WriteFile(path, []byte("id,count\n1,2\n3,4\n"), 0o644))

		table, err := ParseFile(fileOpener{}, path)
		require.NoError(t, err)
		assert.Len(t, table.Rows, 2)
	})

	t.Run("missing file is data format error", func(t *testing.T) {
		_, err := ParseFile(fileOpener{}, filepath.Join(dir, "missing.csv"))
		require.Error(t, err)
		assert.ErrorIs(t, err, port.ErrDataFormat)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unparsable file is data format error", func(t *testing.T) {
		path := filepath.Join(dir, "broken.csv")
		require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2,3\n"), 0o644))

		_, err := ParseFile(fileOpener{}, path)
		require.Error(t, err)
		assert.ErrorIs(t, err, port.ErrDataFormat)

		var me *port.MigrationError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, path, me.Path)
	})
}
