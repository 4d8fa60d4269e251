package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 外部服务（AI / STT / Gmail）调用延迟（毫秒）
	AdapterCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adapter_call_latency_ms",
			Help:    "External adapter call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 12), // 50ms to ~100s
		},
		[]string{"adapter", "operation", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of slow database queries",
		},
		[]string{"operation", "table"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 任务生成计数
	TaskGenerationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_generation_count",
			Help: "Total number of tasks generated",
		},
		[]string{"source"}, // source: goal, meeting
	)

	// 支出分类计数
	ExpenseClassifiedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expense_classified_count",
			Help: "Total number of expenses categorized",
		},
		[]string{"source"}, // source: user, ai, fallback
	)

	// 邮件同步计数
	EmailSyncCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_sync_count",
			Help: "Total number of email sync runs",
		},
		[]string{"status"}, // status: success, failed, locked
	)

	// 邮件同步行变化
	EmailSyncRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_sync_rows",
			Help: "Email rows changed by sync runs",
		},
		[]string{"change"}, // change: inserted, switched_out, pruned
	)

	// 响应缓存命中
	ResponseCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "response_cache_count",
			Help: "Response cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)
)

// RecordAdapterCallLatency 记录外部服务调用延迟
func RecordAdapterCallLatency(adapter, operation, status string, duration time.Duration) {
	AdapterCallLatency.WithLabelValues(adapter, operation, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(operation, table string) {
	SlowQueryCount.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementTaskGeneration 增加任务生成计数
func IncrementTaskGeneration(source string, n int) {
	TaskGenerationCount.WithLabelValues(source).Add(float64(n))
}

// IncrementExpenseClassified 增加支出分类计数
func IncrementExpenseClassified(source string) {
	ExpenseClassifiedCount.WithLabelValues(source).Inc()
}

// IncrementEmailSync 增加邮件同步计数
func IncrementEmailSync(status string) {
	EmailSyncCount.WithLabelValues(status).Inc()
}

// AddEmailSyncRows 记录同步中插入或删除的行数
func AddEmailSyncRows(change string, n int64) {
	if n > 0 {
		EmailSyncRows.WithLabelValues(change).Add(float64(n))
	}
}

// IncrementResponseCache 记录缓存命中情况
func IncrementResponseCache(result string) {
	ResponseCacheCount.WithLabelValues(result).Inc()
}
