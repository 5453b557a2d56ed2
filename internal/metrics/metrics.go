package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	FramesTotal        *prometheus.CounterVec // labels: result=ok|checksum_error|malformed|unknown_shape
	SerialBytesIn      prometheus.Counter
	SerialBytesOut     prometheus.Counter
	OutboundQueueDepth prometheus.Gauge       // 当前待发送帧数
	PollTicksTotal     prometheus.Counter     // 轮询次数
	PublishTotal       prometheus.Counter     // 达到发布阈值的字段更新数
	WritesTotal        *prometheus.CounterVec // labels: outcome=sent|rejected|noop
	BatteriesSeen      prometheus.Gauge       // 线上观测到的电池数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serial_frames_total",
			Help: "Inbound serial frames by validation result.",
		}, []string{"result"}),
		SerialBytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "serial_bytes_received_total",
			Help: "Total bytes read from the serial port.",
		}),
		SerialBytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "serial_bytes_sent_total",
			Help: "Total bytes written to the serial port.",
		}),
		OutboundQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "serial_outbound_queue_depth",
			Help: "Frames currently waiting in the outbound queue.",
		}),
		PollTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poll_ticks_total",
			Help: "Poll timer ticks fired.",
		}),
		PublishTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "field_publish_total",
			Help: "Field updates that passed the change filter.",
		}),
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "param_writes_total",
			Help: "Parameter write attempts by outcome.",
		}, []string{"outcome"}),
		BatteriesSeen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batteries_seen",
			Help: "Distinct battery addresses observed on the bus.",
		}),
	}
	reg.MustRegister(m.FramesTotal, m.SerialBytesIn, m.SerialBytesOut,
		m.OutboundQueueDepth, m.PollTicksTotal, m.PublishTotal, m.WritesTotal, m.BatteriesSeen)
	return m
}
