package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels
const (
	OpInit    = "init"
	OpSummary = "summary"
	OpSearch  = "search"
	OpAdd     = "add"
)

var (
	// Throughput by operation and reply status
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "managed_requests_total",
		Help: "Total number of managed store requests by operation and status code",
	}, []string{"operation", "code"})

	// Latency
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "managed_request_duration_seconds",
		Help:    "Time taken to serve managed store requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// State
	OpenStores = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "managed_open_stores",
		Help: "Number of stores currently held open",
	})

	RowsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "managed_rows_added_total",
		Help: "Total number of rows appended to stores",
	})
)

// Track records the count and latency of every request served by the handlers after it
func Track(operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		Requests.WithLabelValues(operation, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
