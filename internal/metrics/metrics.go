// Package metrics exposes bridge counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vrt-bridge/internal/mapping"
	"vrt-bridge/internal/vrt"
)

// Metrics holds the bridge's Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// UDP packet metrics
	PacketsReceived *prometheus.CounterVec
	BytesReceived   prometheus.Counter
	DecodeErrors    *prometheus.CounterVec
	PacketsLost     prometheus.Counter

	// Stream metrics
	ActiveStreams prometheus.Gauge

	// Routing metrics
	AttributeWrites *prometheus.CounterVec
	RouteSkips      prometheus.Counter
	RouteFailures   prometheus.Counter
	ProcessingTime  prometheus.Histogram
	MappingRecords  prometheus.Gauge
	MappingErrors   *prometheus.CounterVec
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_packets_received_total",
			Help: "Total number of VRT packets decoded, by packet type",
		}, []string{"type"}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "vrt_bytes_received_total",
			Help: "Total number of bytes in decoded VRT packets",
		}),
		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_decode_errors_total",
			Help: "Total number of datagrams that failed to decode, by error kind",
		}, []string{"kind"}),
		PacketsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "vrt_packets_lost_total",
			Help: "Packets missing according to the 4-bit packet count",
		}),

		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vrt_active_streams",
			Help: "Current number of tracked VRT streams",
		}),

		AttributeWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_attribute_writes_total",
			Help: "Total number of attribute writes, by attribute namespace",
		}, []string{"attr_type"}),
		RouteSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "vrt_route_skips_total",
			Help: "Mapped CIF0 fields that carried no scalar value",
		}),
		RouteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "vrt_route_failures_total",
			Help: "Attribute writes that failed",
		}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vrt_processing_seconds",
			Help:    "Time from datagram receipt to the last attribute write",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		MappingRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vrt_mapping_records",
			Help: "Number of mapping records loaded",
		}),
		MappingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_mapping_errors_total",
			Help: "Mapping file problems found at load time, by stage",
		}, []string{"stage"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PacketReceived counts a decoded packet.
func (m *Metrics) PacketReceived(t vrt.PacketType, size int) {
	m.PacketsReceived.WithLabelValues(t.String()).Inc()
	m.BytesReceived.Add(float64(size))
}

// Processed observes the receive-to-write latency of a routed packet.
func (m *Metrics) Processed(took time.Duration) {
	m.ProcessingTime.Observe(took.Seconds())
}

// Lost adds packets reported missing by the stream tracker.
func (m *Metrics) Lost(n uint64) {
	m.PacketsLost.Add(float64(n))
}

// SetActiveStreams updates the tracked stream gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.ActiveStreams.Set(float64(n))
}

// MappingLoaded records the outcome of loading a mapping file.
func (m *Metrics) MappingLoaded(records, syntaxErrors, invalid int) {
	m.MappingRecords.Set(float64(records))
	m.MappingErrors.WithLabelValues("syntax").Add(float64(syntaxErrors))
	m.MappingErrors.WithLabelValues("validation").Add(float64(invalid))
}

// DecodeFailed counts a datagram that did not decode.
func (m *Metrics) DecodeFailed(err error) {
	m.DecodeErrors.WithLabelValues(vrt.ErrorKind(err)).Inc()
}

// RouteWrite counts a successful attribute write.
func (m *Metrics) RouteWrite(rec mapping.Record) {
	m.AttributeWrites.WithLabelValues(rec.AttrType.String()).Inc()
}

// RouteSkip counts a mapped field without a scalar value.
func (m *Metrics) RouteSkip(mapping.Record) {
	m.RouteSkips.Inc()
}

// RouteError counts a failed attribute write.
func (m *Metrics) RouteError(mapping.Record, error) {
	m.RouteFailures.Inc()
}
