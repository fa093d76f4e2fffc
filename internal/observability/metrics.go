package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized set of Prometheus collectors for the agent core.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.ToolExecutionCounter.WithLabelValues("read", "success").Inc()
type Metrics struct {
	// TokensCounted tracks tokens measured by the accountant.
	// Labels: method (exact|heuristic)
	TokensCounted *prometheus.CounterVec

	// CompactionEvents counts context compactions triggered.
	// Labels: reason (threshold|manual)
	CompactionEvents *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolExecutionRetries counts retry attempts per tool.
	ToolExecutionRetries *prometheus.CounterVec

	// TurnIterations records how many reason/act cycles a turn used.
	TurnIterations prometheus.Histogram

	// ApprovalDecisions counts policy decisions.
	// Labels: decision (auto_allow|auto_deny|ask_user)
	ApprovalDecisions *prometheus.CounterVec

	// PlaybookStrategies tracks strategy counts by category.
	PlaybookStrategies *prometheus.GaugeVec

	// LLMRequestDuration measures LLM completion latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec
}

// NewMetrics registers and returns the agent core's metric collectors
// against the given registerer. Pass prometheus.DefaultRegisterer for the
// global registry, or a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokensCounted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_accountant_tokens_counted_total",
			Help: "Tokens counted by the token accountant, by counting method.",
		}, []string{"method"}),
		CompactionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_compaction_events_total",
			Help: "Context compactions performed, by trigger reason.",
		}, []string{"reason"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_executions_total",
			Help: "Tool executions, by tool name and outcome.",
		}, []string{"tool_name", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_tool_execution_duration_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),
		ToolExecutionRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_execution_retries_total",
			Help: "Tool execution retry attempts, by tool name.",
		}, []string{"tool_name"}),
		TurnIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_turn_iterations",
			Help:    "Reason/act iterations consumed per turn.",
			Buckets: prometheus.LinearBuckets(1, 2, 15),
		}),
		ApprovalDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_approval_decisions_total",
			Help: "Approval policy decisions, by decision kind.",
		}, []string{"decision"}),
		PlaybookStrategies: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentcore_playbook_strategies",
			Help: "Current strategy count in the playbook, by category.",
		}, []string{"category"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_llm_request_duration_seconds",
			Help:    "LLM completion request latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_llm_requests_total",
			Help: "LLM completion requests, by provider, model and outcome.",
		}, []string{"provider", "model", "status"}),
	}
}
