// Package observe 暴露 Prometheus 指标
package observe

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// 指标定义
var (
	RowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "csvmigrator_rows_written_total",
		Help: "成功写入的行数",
	}, []string{"collection"})
	FilesMigrated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "csvmigrator_files_migrated_total",
		Help: "完整迁移的文件数",
	})
	MigrationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "csvmigrator_failures_total",
		Help: "按错误分类统计的迁移失败次数",
	}, []string{"kind"})
	WriteDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "csvmigrator_write_duration_seconds",
		Help:    "单行写入耗时",
		Buckets: prometheus.DefBuckets,
	})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{RowsWritten, FilesMigrated, MigrationFailures, WriteDuration}
}

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(collectors()...)
}

// Push 把本次运行的指标推送到 Pushgateway。迁移是一次性任务，没有常驻的 /metrics 端点。
func Push(gatewayURL, job string) error {
	pusher := push.New(gatewayURL, job)
	for _, c := range collectors() {
		pusher = pusher.Collector(c)
	}
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("推送指标到 '%s' 失败: %w", gatewayURL, err)
	}
	return nil
}
