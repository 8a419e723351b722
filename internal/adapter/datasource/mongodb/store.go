// Package mongodb file: internal/adapter/datasource/mongodb/store.go
package mongodb

import (
	"CSVMigrator/internal/core/domain"
	"CSVMigrator/internal/core/port"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// 断言 *Store 实现 port.Store 接口，编译期校验
var _ port.Store = (*Store)(nil)

// keyField 存放生成的子键，CSV 中不能出现同名列
const keyField = "_id"

// MongoDB 服务端错误码
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

// Store 把集合节点映射为同名的 MongoDB 集合，每条记录是一个文档，_id 即子键。
type Store struct {
	client   *mongo.Client
	database *mongo.Database
}

// Open 连接并 Ping 一次，确保凭证和网络在处理任何文件之前就可用
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &port.MigrationError{Kind: port.ErrConnection, Err: fmt.Errorf("连接 MongoDB 失败: %w", err)}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &port.MigrationError{Kind: classifyConnect(err), Err: fmt.Errorf("Ping MongoDB 失败: %w", err)}
	}
	slog.Info("MongoDB 连接已建立", "database", database)
	return &Store{client: client, database: client.Database(database)}, nil
}

// Type 返回适配器类型
func (s *Store) Type() string {
	return "mongodb"
}

// Ref 引用一个节点 (集合)
func (s *Store) Ref(path string) port.Node {
	return &node{store: s, path: path}
}

// HealthCheck 检查连接
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return &port.MigrationError{Kind: classifyConnect(err), Err: err}
	}
	return nil
}

// Close 断开连接
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

type node struct {
	store *Store
	path  string
}

func (n *node) Path() string { return n.path }

// Push 以新的 ObjectID 作为子键插入一个文档
func (n *node) Push(ctx context.Context, rec domain.Record) (string, error) {
	id := primitive.NewObjectID()
	doc, err := toDocument(id, rec)
	if err != nil {
		return "", &port.MigrationError{Kind: port.ErrWrite, Err: err}
	}
	if _, err := n.store.database.Collection(n.path).InsertOne(ctx, doc); err != nil {
		return "", &port.MigrationError{Kind: classifyWrite(err), Err: err}
	}
	return id.Hex(), nil
}

// toDocument 把记录转换成 BSON 文档，空单元格保存为 null
func toDocument(id primitive.ObjectID, rec domain.Record) (bson.M, error) {
	if _, clash := rec[keyField]; clash {
		return nil, fmt.Errorf("列名 '%s' 与文档主键冲突", keyField)
	}
	doc := bson.M(rec.Map(nil))
	doc[keyField] = id
	return doc, nil
}

func classifyConnect(err error) error {
	if isAuthError(err) {
		return port.ErrAuthentication
	}
	return port.ErrConnection
}

func classifyWrite(err error) error {
	switch {
	case isAuthError(err),
		mongo.IsNetworkError(err),
		mongo.IsTimeout(err),
		errors.Is(err, context.Canceled):
		return port.ErrConnection
	default:
		return port.ErrWrite
	}
}

func isAuthError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == codeUnauthorized || cmdErr.Code == codeAuthenticationFailed
	}
	return false
}
