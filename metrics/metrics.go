// Package metrics defines prometheus metric types for the compressor.
//
// When defining new metrics, useful things to track are packets entering
// and leaving the engine, the formats chosen for them, and the byte counts
// before and after compression.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketCount counts compressed packets by the emitted format.
	//
	// Provides metrics:
	//   rohc_packet_total
	// Example usage:
	//   metrics.PacketCount.WithLabelValues(format.String()).Inc()
	PacketCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rohc_packet_total",
			Help: "The total number of packets compressed, by emitted format.",
		}, []string{"format"})

	// HeaderBytesHistogram tracks the size of emitted compressed headers.
	HeaderBytesHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "rohc_header_bytes_histogram",
			Help: "compressed header size distribution (bytes)",
			Buckets: []float64{
				2, 3, 4, 5, 6, 8,
				10, 12, 16, 20, 25, 32, 40, 50, 63, 79,
				100, 125, 160, 200,
			},
		})

	// SavedBytesHistogram tracks per-packet header bytes saved versus the
	// uncompressed TCP/IP headers.
	SavedBytesHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "rohc_saved_bytes_histogram",
			Help: "per-packet header byte savings distribution",
			Buckets: []float64{
				0, 4, 8, 16, 24, 32, 40, 48, 56, 64, 80, 100, 120,
			},
		})

	// ForcedIRCount counts context resynchronizations outside the normal
	// IR/FO/SO progression.
	ForcedIRCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rohc_forced_ir_total",
			Help: "Number of forced returns to the IR state.",
		})

	// DroppedOptionCount counts TCP options omitted from compressed lists
	// because the option table or value arena was full or the option's
	// length was malformed.
	DroppedOptionCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rohc_dropped_option_total",
			Help: "Number of TCP options dropped from compressed lists.",
		})

	// ErrorCount measures the number of errors.
	//
	// Provides metrics:
	//   rohc_error_total
	// Example usage:
	//   metrics.ErrorCount.WithLabelValues("parse").Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rohc_error_total",
			Help: "The total number of errors encountered.",
		}, []string{"type"})
)

// init() prints a log message to let the user know that the package has
// been loaded and the metrics registered.  The metrics are auto-registered,
// which means they are registered as soon as this package is loaded, and
// the exact time this occurs (and whether this occurs at all in a given
// context) can be opaque.
func init() {
	log.Println("Prometheus metrics in rohc/metrics are registered.")
}
