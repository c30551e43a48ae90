package prom

import (
	"net/http"
	"time"

	"github.com/asciichat/asciichat-go/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ServerObserver exports server metrics to Prometheus.
type ServerObserver struct {
	connGauge          prometheus.Gauge
	activeSlotsGauge   prometheus.Gauge
	handshakeTotal     *prometheus.CounterVec
	handshakeLatency   prometheus.Histogram
	closeTotal         *prometheus.CounterVec
	framesBroadcast    prometheus.Counter
	queueDropTotal     *prometheus.CounterVec
	mixerActiveGauge   prometheus.Gauge
	renderTickDuration prometheus.Histogram
}

// NewServerObserver registers server metrics on the registry.
func NewServerObserver(reg *prometheus.Registry) *ServerObserver {
	o := &ServerObserver{
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asciichat_server_connections",
			Help: "Current connection count.",
		}),
		activeSlotsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asciichat_server_active_slots",
			Help: "Current active client slot count.",
		}),
		handshakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asciichat_server_handshake_total",
			Help: "Handshake attempts by result.",
		}, []string{"result"}),
		handshakeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "asciichat_server_handshake_latency_seconds",
			Help:    "Time to complete the handshake.",
			Buckets: prometheus.DefBuckets,
		}),
		closeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asciichat_server_close_total",
			Help: "Connection close reasons.",
		}, []string{"reason"}),
		framesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asciichat_server_frames_broadcast_total",
			Help: "Video frames fanned out to recipients.",
		}),
		queueDropTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asciichat_server_queue_drop_total",
			Help: "Dropped frames by lane.",
		}, []string{"lane"}),
		mixerActiveGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asciichat_server_mixer_active_sources",
			Help: "Currently active audio sources in the mixer.",
		}),
		renderTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "asciichat_server_render_tick_duration_seconds",
			Help:    "Duration of each server-composed grid render tick.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		o.connGauge,
		o.activeSlotsGauge,
		o.handshakeTotal,
		o.handshakeLatency,
		o.closeTotal,
		o.framesBroadcast,
		o.queueDropTotal,
		o.mixerActiveGauge,
		o.renderTickDuration,
	)
	return o
}

func (o *ServerObserver) ConnCount(n int64)   { o.connGauge.Set(float64(n)) }
func (o *ServerObserver) ActiveSlots(n int)   { o.activeSlotsGauge.Set(float64(n)) }
func (o *ServerObserver) Handshake(result observability.HandshakeResult, d time.Duration) {
	o.handshakeTotal.WithLabelValues(string(result)).Inc()
	o.handshakeLatency.Observe(d.Seconds())
}
func (o *ServerObserver) Close(reason observability.CloseReason) {
	o.closeTotal.WithLabelValues(string(reason)).Inc()
}
func (o *ServerObserver) FramesBroadcast(n int64) { o.framesBroadcast.Add(float64(n)) }
func (o *ServerObserver) QueueDrop(lane observability.DropLane) {
	o.queueDropTotal.WithLabelValues(string(lane)).Inc()
}
func (o *ServerObserver) MixerActiveSources(n int) { o.mixerActiveGauge.Set(float64(n)) }
func (o *ServerObserver) RenderTickDuration(d time.Duration) {
	o.renderTickDuration.Observe(d.Seconds())
}
