// Package metrics exposes pipeline counters. Long encodes run for hours;
// the optional listener lets an operator watch frame and packet progress
// with standard Prometheus tooling.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all pipeline instrumentation.
type Metrics struct {
	registry prometheus.Registerer

	FramesPainted   prometheus.Counter
	FramesRead      prometheus.Counter
	PacketsEmitted  prometheus.Counter
	PacketsScanned  prometheus.Counter
	PacketsRejected prometheus.Counter
	ChunksEncoded   prometheus.Counter
	ChunksDecoded   prometheus.Counter
	BytesIn         prometheus.Counter
	BytesOut        prometheus.Counter

	OperationDuration *prometheus.HistogramVec

	Goroutines prometheus.GaugeFunc
}

// New creates metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on a custom registry. Tests use this to
// avoid registration conflicts.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FramesPainted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vtape_frames_painted_total",
			Help: "Frames rendered and handed to the muxer.",
		}),
		FramesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "vtape_frames_read_total",
			Help: "Frames received from the demuxer and bit-extracted.",
		}),
		PacketsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vtape_packets_emitted_total",
			Help: "Packets serialized into the bit stream on encode.",
		}),
		PacketsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "vtape_packets_scanned_total",
			Help: "Valid packets recovered by the scanner on decode.",
		}),
		PacketsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "vtape_packets_rejected_total",
			Help: "Magic matches dropped for checksum or version failures.",
		}),
		ChunksEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "vtape_chunks_encoded_total",
			Help: "Source chunks fountain-coded on encode.",
		}),
		ChunksDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "vtape_chunks_decoded_total",
			Help: "Chunks successfully fountain-decoded.",
		}),
		BytesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "vtape_bytes_in_total",
			Help: "Source bytes consumed.",
		}),
		BytesOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "vtape_bytes_out_total",
			Help: "Decoded bytes written.",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vtape_operation_duration_seconds",
			Help:    "Wall time of encode and decode operations.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"operation"}),
		Goroutines: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "vtape_goroutines",
			Help: "Current goroutine count.",
		}, func() float64 {
			return float64(runtime.NumGoroutine())
		}),
	}
}
