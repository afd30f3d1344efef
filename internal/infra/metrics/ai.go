package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatencyMs,
		aiPrecheckBlocks,
		aiImagesGeneratedTotal,
		aiAudioGeneratedTotal,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "model", "success"},
	)

	aiPrecheckBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_precheck_blocks",
			Help: "Count of pre-send affordability blocks per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiImagesGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_images_generated_total",
			Help: "Image generations per model, labeled by success.",
		},
		[]string{"model", "success"},
	)

	aiAudioGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_audio_generated_total",
			Help: "Text-to-speech generations per model, labeled by success.",
		},
		[]string{"model", "success"},
	)
)

func PrecheckBlocked(provider, model string) {
	aiPrecheckBlocks.WithLabelValues(norm(provider), norm(model)).Inc()
}

func ObserveChatUsage(provider, model string, tokensIn, tokensOut int, latencyMs int, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncImageGenerated(model string, success bool) {
	aiImagesGeneratedTotal.WithLabelValues(norm(model), strconv.FormatBool(success)).Inc()
}

func IncAudioGenerated(model string, success bool) {
	aiAudioGeneratedTotal.WithLabelValues(norm(model), strconv.FormatBool(success)).Inc()
}
