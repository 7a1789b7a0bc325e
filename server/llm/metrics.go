package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coop_llm_requests_total",
		Help: "Generation requests by provider, model and status.",
	}, []string{"provider", "model", "status"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coop_llm_request_duration_seconds",
		Help:    "Generation request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "model"})
	promptTokens = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coop_llm_prompt_tokens",
		Help:    "Estimated prompt size in tokens.",
		Buckets: prometheus.ExponentialBuckets(64, 2, 8),
	}, []string{"model"})
)

func observeRequest(provider, model string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	requestsTotal.WithLabelValues(provider, model, status).Inc()
	requestDuration.WithLabelValues(provider, model).Observe(time.Since(start).Seconds())
}

func observePrompt(model, prompt string) {
	promptTokens.WithLabelValues(model).Observe(float64(CountTokens(model, prompt)))
}
