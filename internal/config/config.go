// Package config 负责集中式配置加载
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 MIGRATOR_STORE_DRIVER
const EnvPrefix = "MIGRATOR"

// 默认值沿用最初脚本里写死的常量
const (
	defaultCredentialsFile = "Service Accounts/inventory-and-sales-59f32-firebase-adminsdk-fbsvc-d2d01545d8.json"
	defaultDatabaseURL     = "https://inventory-and-sales-59f32-default-rtdb.firebaseio.com"
)

var defaultFiles = []string{
	"Service Accounts/CSV Files/Inventory Management - Inventory Count Log.csv",
	"Service Accounts/CSV Files/Inventory Management - Sales.csv",
}

type FirebaseConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	DatabaseURL     string `mapstructure:"database_url" validate:"omitempty,url"`
	NullAsEmpty     bool   `mapstructure:"null_as_empty"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri" validate:"omitempty,uri"`
	Database string `mapstructure:"database"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver" validate:"required,oneof=firebase sqlite mongodb"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
}

type SourcesConfig struct {
	Files       []string      `mapstructure:"files" validate:"required,min=1,dive,required"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gte=0"`
}

type RunnerConfig struct {
	// WritesPerSecond 为 0 表示不限速
	WritesPerSecond float64 `mapstructure:"writes_per_second" validate:"gte=0"`
	Burst           int     `mapstructure:"burst" validate:"gte=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`
	Job            string `mapstructure:"job"`
}

// Config 是迁移程序的全部配置
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Sources SourcesConfig `mapstructure:"sources"`
	Runner  RunnerConfig  `mapstructure:"runner"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "firebase")
	v.SetDefault("store.firebase.credentials_file", defaultCredentialsFile)
	v.SetDefault("store.firebase.database_url", defaultDatabaseURL)
	v.SetDefault("store.firebase.null_as_empty", true)
	v.SetDefault("store.sqlite.path", "instance/migrated.db")
	v.SetDefault("store.mongodb.uri", "")
	v.SetDefault("store.mongodb.database", "")
	v.SetDefault("sources.files", defaultFiles)
	v.SetDefault("sources.http_timeout", 30*time.Second)
	v.SetDefault("runner.writes_per_second", 0)
	v.SetDefault("runner.burst", 1)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "csv_migrator")
}

// Load 读取配置：默认值 < 配置文件 < MIGRATOR_* 环境变量。
// path 为空或文件不存在时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件 '%s' 失败: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("检查配置文件 '%s' 失败: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置到结构体失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 做字段级校验，以及依赖所选驱动的必填项校验
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	switch c.Store.Driver {
	case "firebase":
		if c.Store.Firebase.CredentialsFile == "" || c.Store.Firebase.DatabaseURL == "" {
			return errors.New("配置校验失败: firebase 驱动需要 store.firebase.credentials_file 和 store.firebase.database_url")
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return errors.New("配置校验失败: sqlite 驱动需要 store.sqlite.path")
		}
	case "mongodb":
		if c.Store.MongoDB.URI == "" || c.Store.MongoDB.Database == "" {
			return errors.New("配置校验失败: mongodb 驱动需要 store.mongodb.uri 和 store.mongodb.database")
		}
	}
	return nil
}
