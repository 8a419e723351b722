// file: internal/service/migration/runner_test.go
package migration

import (
	"CSVMigrator/internal/adapter/datasource/sqlite"
	"CSVMigrator/internal/core/domain"
	"CSVMigrator/internal/core/port"
	"CSVMigrator/internal/downloader"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//  内存存储测试替身
// ============================================================================

type memStore struct {
	mu      sync.Mutex
	seq     int
	nodes   map[string]map[string]domain.Record
	order   []string // 写入顺序 "path/key"
	failAt  int      // 第几次 Push 失败 (从 1 开始)，0 表示不失败
	failErr error
}

func newMemStore() *memStore {
	return &memStore{nodes: make(map[string]map[string]domain.Record)}
}

func (s *memStore) Ref(path string) port.Node { return &memNode{store: s, path: path} }
func (s *memStore) HealthCheck(ctx context.Context) error { return nil }
func (s *memStore) Type() string { return "memory" }
func (s *memStore) Close() error { return nil }

func (s *memStore) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes[path])
}

func (s *memStore) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[path]
	return ok
}

type memNode struct {
	store *memStore
	path  string
}

func (n *memNode) Path() string { return n.path }

func (n *memNode) Push(ctx context.Context, rec domain.Record) (string, error) {
	s := n.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.failAt > 0 && s.seq == s.failAt {
		return "", s.failErr
	}
	key := fmt.Sprintf("-K%04d", s.seq)
	if s.nodes[n.path] == nil {
		s.nodes[n.path] = make(map[string]domain.Record)
	}
	s.nodes[n.path][key] = rec
	s.order = append(s.order, n.path+"/"+key)
	return key, nil
}

// ============================================================================
//  测试辅助
// ============================================================================

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestRunner(store port.Store, out *bytes.Buffer, opts ...Option) *Runner {
	opts = append([]Option{WithOutput(out)}, opts...)
	return NewRunner(store, downloader.NewRegistry(5*time.Second), opts...)
}

// ============================================================================
//  Runner Tests
// ============================================================================

func TestRun_WritesOneEntryPerRow(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "Inventory Count Log.csv", "sku,qty,price,counted\nA-1,3,1.5,True\nA-2,7,2,False\nA-3,0,3.25,True\n")

	store := newMemStore()
	var out bytes.Buffer
	reports, err := newTestRunner(store, &out).Run(context.Background(), []string{path})
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.Equal(t, "Inventory Count Log", reports[0].Collection)
	assert.Equal(t, 3, reports[0].Rows)
	assert.Len(t, reports[0].Keys, 3)
	assert.Equal(t, 3, store.count("Inventory Count Log"))

	// 每行一一对应，数值被类型转换
	var skus []string
	for _, key := range reports[0].Keys {
		rec := store.nodes["Inventory Count Log"][key]
		require.Len(t, rec, 4)
		skus = append(skus, rec["sku"].String())
		assert.Equal(t, domain.KindInt, rec["qty"].Kind())
		assert.Equal(t, domain.KindFloat, rec["price"].Kind())
		assert.Equal(t, domain.KindBool, rec["counted"].Kind())
	}
	assert.Equal(t, []string{"A-1", "A-2", "A-3"}, skus, "行按解析顺序写入")

	assert.Equal(t, fmt.Sprintf("Data from %s migrated successfully to node 'Inventory Count Log'!\n", path), out.String())
}

func TestRun_FilesInListOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "x\n1\n")
	b := writeCSV(t, dir, "a.b.csv", "y\n2\n")

	store := newMemStore()
	var out bytes.Buffer
	_, err := newTestRunner(store, &out).Run(context.Background(), []string{b, a})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.b/-K0001", "a/-K0002"}, store.order)
	assert.Equal(t,
		fmt.Sprintf("Data from %s migrated successfully to node 'a.b'!\nData from %s migrated successfully to node 'a'!\n", b, a),
		out.String())
}

func TestRun_NotIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "sales.csv", "id,total\n1,10\n2,20\n3,30\n")

	store := newMemStore()
	var out bytes.Buffer
	runner := newTestRunner(store, &out)

	_, err := runner.Run(context.Background(), []string{path})
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), []string{path})
	require.NoError(t, err)

	assert.Equal(t, 6, store.count("sales"))
}

func TestRun_ParseFailureStopsRun(t *testing.T) {
	dir := t.TempDir()
	good := writeCSV(t, dir, "good.csv", "a,b\n1,2\n3,4\n")
	bad := writeCSV(t, dir, "bad.csv", "a,b\n1,2,3\n")
	never := writeCSV(t, dir, "never.csv", "a\n1\n")

	store := newMemStore()
	var out bytes.Buffer
	reports, err := newTestRunner(store, &out).Run(context.Background(), []string{good, bad, never})

	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrDataFormat)

	var me *port.MigrationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, bad, me.Path)
	assert.Equal(t, "bad", me.Collection)

	require.Len(t, reports, 1)
	assert.Equal(t, 2, store.count("good"))
	assert.False(t, store.has("bad"))
	assert.False(t, store.has("never"))
	assert.Equal(t, fmt.Sprintf("Data from %s migrated successfully to node 'good'!\n", good), out.String())
}

func TestRun_MissingFileIsDataFormatError(t *testing.T) {
	store := newMemStore()
	var out bytes.Buffer
	_, err := newTestRunner(store, &out).Run(context.Background(), []string{filepath.Join(t.TempDir(), "missing.csv")})

	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrDataFormat)
	assert.Empty(t, out.String())
}

func TestRun_HeaderOnlyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "empty.csv", "sku,qty\n")

	store := newMemStore()
	var out bytes.Buffer
	reports, err := newTestRunner(store, &out).Run(context.Background(), []string{path})
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.Zero(t, reports[0].Rows)
	assert.Zero(t, store.count("empty"))
	assert.Equal(t, fmt.Sprintf("Data from %s migrated successfully to node 'empty'!\n", path), out.String())
}

func TestRun_EmptyCellWrittenAsNull(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "notes.csv", "sku,note\nA-1,\n")

	store := newMemStore()
	var out bytes.Buffer
	reports, err := newTestRunner(store, &out).Run(context.Background(), []string{path})
	require.NoError(t, err)

	rec := store.nodes["notes"][reports[0].Keys[0]]
	note, ok := rec["note"]
	require.True(t, ok, "空单元格的列不能被省略")
	assert.True(t, note.IsNull())
}

func TestRun_WriteRejectedAbortsRemainingRowsAndFiles(t *testing.T) {
	dir := t.TempDir()
	first := writeCSV(t, dir, "first.csv", "a\n1\n2\n3\n")
	second := writeCSV(t, dir, "second.csv", "a\n1\n")

	store := newMemStore()
	store.failAt = 2
	store.failErr = &port.MigrationError{Kind: port.ErrWrite, Err: errors.New("Invalid data; couldn't parse JSON object")}

	var out bytes.Buffer
	reports, err := newTestRunner(store, &out).Run(context.Background(), []string{first, second})

	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrWrite)
	assert.Contains(t, err.Error(), "Invalid data")

	var me *port.MigrationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 2, me.Row)
	assert.Equal(t, "first", me.Collection)

	assert.Empty(t, reports)
	assert.Equal(t, 1, store.count("first"), "出错前写入的行保持不变")
	assert.False(t, store.has("second"))
	assert.Empty(t, out.String())
}

func TestRun_ConnectionErrorKeepsKind(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "a.csv", "a\n1\n")

	store := newMemStore()
	store.failAt = 1
	store.failErr = &port.MigrationError{Kind: port.ErrConnection, Err: errors.New("401 Unauthorized")}

	var out bytes.Buffer
	_, err := newTestRunner(store, &out).Run(context.Background(), []string{path})
	assert.ErrorIs(t, err, port.ErrConnection)
	assert.Equal(t, "connection", port.KindName(err))
}

func TestRun_UnclassifiedStoreErrorIsWriteError(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "a.csv", "a\n1\n")

	store := newMemStore()
	store.failAt = 1
	store.failErr = errors.New("boom")

	var out bytes.Buffer
	_, err := newTestRunner(store, &out).Run(context.Background(), []string{path})
	assert.ErrorIs(t, err, port.ErrWrite)
}

func TestRun_WriteRateLimit(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "a.csv", "a\n1\n2\n3\n")

	store := newMemStore()
	var out bytes.Buffer
	runner := newTestRunner(store, &out, WithWriteRate(1000, 1))
	require.NotNil(t, runner.limiter)

	_, err := runner.Run(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 3, store.count("a"))

	assert.Nil(t, newTestRunner(store, &out, WithWriteRate(0, 5)).limiter)
}

func TestRun_RateLimitWaitCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "a.csv", "a\n1\n2\n")

	store := newMemStore()
	var out bytes.Buffer
	runner := newTestRunner(store, &out, WithWriteRate(0.001, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "等待写入配额失败")
}

// ============================================================================
//  端到端: SQLite 存储
// ============================================================================

func TestRun_EndToEndWithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	log := writeCSV(t, dir, "CSV Files/Inventory Management - Inventory Count Log.csv",
		"Date,Item,Count,Note\n2024-01-02,Bolts,120,\n2024-01-03,Nuts,80.5,recount\n")
	sales := writeCSV(t, dir, "CSV Files/Inventory Management - Sales.csv",
		"Item,Qty,Paid\nBolts,3,TRUE\n")

	store, err := sqlite.Open(ctx, filepath.Join(dir, "nodes.db"))
	require.NoError(t, err)
	defer store.Close()

	var out bytes.Buffer
	_, err = newTestRunner(store, &out).Run(ctx, []string{log, sales})
	require.NoError(t, err)

	children, err := store.Children(ctx, "Inventory Management - Inventory Count Log")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Bolts", children[0].Value["Item"])
	assert.Equal(t, 120.0, children[0].Value["Count"])
	assert.Contains(t, children[0].Value, "Note")
	assert.Nil(t, children[0].Value["Note"])

	n, err := store.Count(ctx, "Inventory Management - Sales")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Contains(t, out.String(), "to node 'Inventory Management - Inventory Count Log'!")
	assert.Contains(t, out.String(), "to node 'Inventory Management - Sales'!")
}
