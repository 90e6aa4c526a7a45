// Package metrics 汇总运行指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "onebot_cai"

// Registry 本进程的指标注册表
var Registry = prometheus.NewRegistry()

var (
	actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "动作调用次数",
	}, []string{"action", "retcode"})

	actionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "action_duration_seconds",
		Help:      "动作处理耗时",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_pushed_total",
		Help:      "推送到各传输方式的事件数",
	}, []string{"transport"})

	pushFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_failures_total",
		Help:      "事件推送失败次数",
	}, []string{"transport"})

	reverseConnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reverse_ws_connects_total",
		Help:      "反向 WebSocket 连接尝试次数",
	}, []string{"result"})

	reverseQueue = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reverse_ws_queue_length",
		Help:      "反向 WebSocket 待发送事件数",
	})

	pruned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_pruned_total",
		Help:      "清理的过期记录数",
	})
)

func init() {
	Registry.MustRegister(
		actions, actionDuration, events, pushFailures, reverseConnects, reverseQueue, pruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler 指标导出接口
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveAction 记录一次动作调用
func ObserveAction(action string, retcode int, d time.Duration) {
	actions.WithLabelValues(action, strconv.Itoa(retcode)).Inc()
	actionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// EventPushed 记录一次事件推送
func EventPushed(transport string) {
	events.WithLabelValues(transport).Inc()
}

// PushFailed 记录一次推送失败
func PushFailed(transport string) {
	pushFailures.WithLabelValues(transport).Inc()
}

// ReverseConnect 记录一次反向连接尝试
func ReverseConnect(ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	reverseConnects.WithLabelValues(result).Inc()
}

// ReverseQueue 更新反向连接队列长度
func ReverseQueue(n int) {
	reverseQueue.Set(float64(n))
}

// Pruned 记录清理数量
func Pruned(n int) {
	pruned.Add(float64(n))
}
