// Package metrics exposes the assistant's Prometheus metrics
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethanbaker/melissa/internal/agents/melissa"
	"github.com/ethanbaker/melissa/internal/voice"
	"github.com/ethanbaker/melissa/internal/wakeword"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Turn outcomes used as the status label
const (
	TurnOK    = "ok"
	TurnError = "error"
	TurnEnded = "ended"
	TurnEmpty = "empty"
)

// Collector owns a registry with every assistant metric
type Collector struct {
	registry  *prometheus.Registry
	namespace string

	// gate
	gateTransitions *prometheus.CounterVec
	gateActive      prometheus.Gauge
	wakeDetections  prometheus.Counter
	gateMu          sync.Mutex
	gateSeq         uint64

	// voice turns
	turnsTotal   *prometheus.CounterVec
	turnErrors   *prometheus.CounterVec
	turnDuration prometheus.Histogram

	// agent tools
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector with its own registry, including the Go runtime
// and process collectors
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry:  reg,
		namespace: namespace,
		logger:    logger.With(zap.String("component", "metrics")),
	}

	c.gateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_transitions_total",
			Help:      "Wake word gate transitions by reason",
		},
		[]string{"reason"},
	)

	c.gateActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gate_active",
		Help:      "1 while the listening window is open",
	})

	c.wakeDetections = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wake_word_detections_total",
		Help:      "Total number of wake word detections",
	})

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_turns_total",
			Help:      "Voice turns by outcome",
		},
		[]string{"status"},
	)

	c.turnErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_turn_errors_total",
			Help:      "Failed voice turns by pipeline stage",
		},
		[]string{"stage"},
	)

	c.turnDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "voice_turn_duration_seconds",
		Help:      "Time from end of speech to end of reply",
		Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30},
	})

	c.toolCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tool_calls_total",
			Help:      "Agent tool executions",
		},
		[]string{"tool", "status"},
	)

	c.toolDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_tool_duration_seconds",
			Help:      "Agent tool execution time in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"tool"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return c
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveGate records a gate transition. Pass it to wakeword.WithObserver. A
// transition older than the last one applied only counts, it never moves the gauge.
func (c *Collector) ObserveGate(tr wakeword.GateTransition) {
	c.gateTransitions.WithLabelValues(tr.Reason).Inc()

	c.gateMu.Lock()
	defer c.gateMu.Unlock()
	if tr.Seq != 0 && tr.Seq <= c.gateSeq {
		return
	}
	c.gateSeq = tr.Seq
	if tr.To == wakeword.GateActive {
		c.gateActive.Set(1)
	} else {
		c.gateActive.Set(0)
	}
}

// RecordDetection counts a wake word detection
func (c *Collector) RecordDetection() {
	c.wakeDetections.Inc()
}

// RecordTurn records a finished voice turn
func (c *Collector) RecordTurn(r voice.TurnResult) {
	status := TurnOK
	switch {
	case r.Err != nil:
		status = TurnError
		c.turnErrors.WithLabelValues(r.Stage).Inc()
	case r.Ended:
		status = TurnEnded
	case r.Transcript == "":
		status = TurnEmpty
	}

	c.turnsTotal.WithLabelValues(status).Inc()
	if status != TurnEmpty {
		c.turnDuration.Observe(r.Duration.Seconds())
	}
}

// RecordTool records an agent tool execution
func (c *Collector) RecordTool(call melissa.ToolCall) {
	status := "ok"
	if call.Err != nil {
		status = "error"
	}
	c.toolCalls.WithLabelValues(call.Name, status).Inc()
	c.toolDuration.WithLabelValues(call.Name).Observe(call.Duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// GinMiddleware records every request by its route template
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		c.RecordHTTPRequest(ctx.Request.Method, path, ctx.Writer.Status(), time.Since(start))
	}
}

// RegisterGaugeFunc exposes a value read at scrape time, such as dropped audio frames
func (c *Collector) RegisterGaugeFunc(name, help string, fn func() float64) {
	err := c.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, fn))
	if err != nil {
		c.logger.Warn("failed to register gauge", zap.String("name", name), zap.Error(err))
	}
}
