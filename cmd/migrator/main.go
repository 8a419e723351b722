// file: cmd/migrator/main.go

package main

import (
	"CSVMigrator/internal/adapter/datasource/firebase"
	"CSVMigrator/internal/adapter/datasource/mongodb"
	"CSVMigrator/internal/adapter/datasource/sqlite"
	"CSVMigrator/internal/config"
	"CSVMigrator/internal/core/port"
	"CSVMigrator/internal/downloader"
	"CSVMigrator/internal/observe"
	"CSVMigrator/internal/service/migration"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

const version = "v0.3.0"

// defaultConfigPath 相对于工作目录，源文件路径也按工作目录解析
var defaultConfigPath = filepath.Join("configs", "config.yaml")

func main() {
	// 在日志系统完全初始化前，使用标准 log
	log.Printf("CSVMigrator %s 正在启动...", version)

	configPath := os.Getenv("MIGRATOR_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("CRITICAL: 加载配置失败: %v", err)
	}

	observe.InitLogger(cfg.Log.Level)
	observe.Register()
	slog.Info("配置加载并解析成功", "path", configPath, "driver", cfg.Store.Driver, "files", len(cfg.Sources.Files))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()

	if cfg.Metrics.PushgatewayURL != "" {
		if pushErr := observe.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); pushErr != nil {
			slog.Warn("推送指标失败", "error", pushErr)
		}
	}

	if err != nil {
		slog.Error("迁移失败，程序退出", "kind", port.KindName(err), "error", err)
		os.Exit(1)
	}
	slog.Info("全部文件迁移完成，程序即将退出。")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("关闭存储连接时发生错误", "error", err)
		}
	}()

	if err := store.HealthCheck(ctx); err != nil {
		return err
	}
	slog.Info("存储已就绪", "type", store.Type())

	runner := migration.NewRunner(
		store,
		downloader.NewRegistry(cfg.Sources.HTTPTimeout),
		migration.WithWriteRate(cfg.Runner.WritesPerSecond, cfg.Runner.Burst),
	)
	reports, err := runner.Run(ctx, cfg.Sources.Files)
	for _, r := range reports {
		slog.Info("文件迁移摘要", "path", r.Path, "node", r.Collection, "rows", r.Rows, "duration", r.Duration)
	}
	return err
}

// openStore 按驱动建立连接。连接只建立一次，在处理任何文件之前完成。
func openStore(ctx context.Context, cfg config.StoreConfig) (port.Store, error) {
	switch cfg.Driver {
	case "firebase":
		return firebase.Open(ctx, firebase.Config{
			CredentialsFile: cfg.Firebase.CredentialsFile,
			DatabaseURL:     cfg.Firebase.DatabaseURL,
			NullAsEmpty:     cfg.Firebase.NullAsEmpty,
		})
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("创建目录 '%s' 失败: %w", dir, err)
			}
		}
		return sqlite.Open(ctx, cfg.SQLite.Path)
	case "mongodb":
		return mongodb.Open(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database)
	default:
		return nil, fmt.Errorf("不支持的存储驱动: '%s'", cfg.Driver)
	}
}
