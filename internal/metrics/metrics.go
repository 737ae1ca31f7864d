package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portcullis_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portcullis_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TasksSubmitted counts accepted task submissions
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portcullis_tasks_submitted_total",
			Help: "Total number of tasks accepted by the queue",
		},
		[]string{"tool"},
	)

	// TasksCompleted counts tasks reaching a terminal status
	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portcullis_tasks_completed_total",
			Help: "Total number of tasks reaching a terminal status",
		},
		[]string{"tool", "status"},
	)

	// TasksRejected counts submissions refused at the door
	TasksRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portcullis_tasks_rejected_total",
			Help: "Total number of task submissions rejected",
		},
		[]string{"reason"},
	)

	// TasksRunning tracks currently executing tasks
	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portcullis_tasks_running",
			Help: "Number of currently running tasks",
		},
	)

	// TasksPending tracks queued tasks awaiting dispatch
	TasksPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portcullis_tasks_pending",
			Help: "Number of pending tasks in the queue",
		},
	)

	// TaskDuration tracks task execution time
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portcullis_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"tool", "status"},
	)

	// AgentSessions counts agent subprocess launches
	AgentSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portcullis_agent_sessions_total",
			Help: "Total number of agent subprocess launches",
		},
	)

	// AgentSessionsEnded counts finished agent sessions by status
	AgentSessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portcullis_agent_sessions_ended_total",
			Help: "Total number of agent sessions ended",
		},
		[]string{"status"},
	)

	// StreamEvents counts parsed stream events by type
	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portcullis_stream_events_total",
			Help: "Total number of agent stream events parsed",
		},
		[]string{"type"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/mcp", "/mcp/", "/metrics":
		return path
	default:
		if len(path) > 5 && path[:5] == "/mcp/" {
			return "/mcp"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTaskSubmit records an accepted submission
func RecordTaskSubmit(tool string) {
	TasksSubmitted.WithLabelValues(tool).Inc()
}

// RecordTaskReject records a refused submission
func RecordTaskReject(reason string) {
	TasksRejected.WithLabelValues(reason).Inc()
}

// RecordTaskDone records a terminal transition with its duration
func RecordTaskDone(tool, status string, durationSeconds float64) {
	TasksCompleted.WithLabelValues(tool, status).Inc()
	TaskDuration.WithLabelValues(tool, status).Observe(durationSeconds)
}

// SetQueueDepth updates the pending/running gauges
func SetQueueDepth(pending, running int) {
	TasksPending.Set(float64(pending))
	TasksRunning.Set(float64(running))
}

// RecordAgentStart increments the agent session counter
func RecordAgentStart() {
	AgentSessions.Inc()
}

// RecordAgentEnd records a finished agent session
func RecordAgentEnd(status string) {
	AgentSessionsEnded.WithLabelValues(status).Inc()
}

// RecordStreamEvent counts one parsed stream event
func RecordStreamEvent(eventType string) {
	StreamEvents.WithLabelValues(eventType).Inc()
}
