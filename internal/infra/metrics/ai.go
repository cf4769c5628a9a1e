package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		llmTokensIn,
		llmTokensOut,
		llmCallsLatencyMs,
	)
}

var (
	llmTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	llmTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	llmCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_calls_latency_ms",
			Help:    "LLM call latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000, 64000},
		},
		[]string{"provider", "model", "success"},
	)
)

func ObserveLLMCall(provider, model string, tokensIn, tokensOut int, latency time.Duration, success bool) {
	lbl := []string{norm(provider), norm(model)}
	llmTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	llmTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	llmCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latency.Milliseconds()))
}
