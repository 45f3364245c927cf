package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 订单状态流转计数
	OrderStatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Total number of order status transitions",
		},
		[]string{"from", "to", "trigger"},
	)

	// 非法状态流转计数
	OrderInvalidTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_invalid_transitions_total",
			Help: "Total number of rejected order status transitions",
		},
		[]string{"from", "to"},
	)

	// 质检结果计数
	QualityCheckResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_quality_check_results_total",
			Help: "Total number of quality check results",
		},
		[]string{"check_type", "status", "automated"},
	)

	// 阶段耗时（分钟）
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_phase_duration_minutes",
			Help:    "Time an order spent in a work phase, in minutes",
			Buckets: prometheus.ExponentialBuckets(15, 2, 12), // 15min to ~21 days
		},
		[]string{"phase"},
	)

	// 里程碑生成计数
	MilestonesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_milestones_generated_total",
			Help: "Total number of milestones generated",
		},
		[]string{"project_type"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库慢查询计数
	DBSlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of slow database queries",
		},
		[]string{"command"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"command"},
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

	// 远程质检评估调用延迟（毫秒）
	EvaluatorCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quality_evaluator_call_latency_ms",
			Help:    "Remote quality evaluator call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"check_type", "status"},
	)
)

// RecordStatusTransition 记录一次状态流转
func RecordStatusTransition(from, to, trigger string) {
	OrderStatusTransitions.WithLabelValues(from, to, trigger).Inc()
}

// RecordInvalidTransition 记录被拒绝的状态流转
func RecordInvalidTransition(from, to string) {
	OrderInvalidTransitions.WithLabelValues(from, to).Inc()
}

// RecordQualityCheck 记录质检结果
func RecordQualityCheck(checkType, status string, automated bool) {
	a := "false"
	if automated {
		a = "true"
	}
	QualityCheckResults.WithLabelValues(checkType, status, a).Inc()
}

// RecordPhaseDuration 记录阶段耗时
func RecordPhaseDuration(phase string, minutes int) {
	PhaseDuration.WithLabelValues(phase).Observe(float64(minutes))
}

// IncrementMilestonesGenerated 增加里程碑生成计数
func IncrementMilestonesGenerated(projectType string, n int) {
	MilestonesGenerated.WithLabelValues(projectType).Add(float64(n))
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(command string) {
	DBSlowQueries.WithLabelValues(command).Inc()
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(command string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordEvaluatorCallLatency 记录远程评估调用延迟
func RecordEvaluatorCallLatency(checkType, status string, duration time.Duration) {
	EvaluatorCallLatency.WithLabelValues(checkType, status).Observe(float64(duration.Milliseconds()))
}
