package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry - общий реестр метрик плеера.
	// Используем promauto.With(Registry), чтобы не засорять prometheus.DefaultRegisterer
	// (go-gin-prometheus регистрирует свои метрики там).
	Registry = prometheus.NewRegistry()

	backendRequests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_player_backend_requests_total",
			Help: "Total number of story backend requests, partitioned by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	backendLatency = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "story_player_backend_request_duration_seconds",
			Help:    "Latency of story backend requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	backendMalformed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_player_backend_malformed_responses_total",
			Help: "Successful backend responses rejected by the wire adapter.",
		},
		[]string{"op"},
	)
	branchPollAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_player_branch_poll_attempts_total",
			Help: "Total number of branch readiness polls, partitioned by result (ready, pending, error).",
		},
		[]string{"result"},
	)
	branchPollStalled = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "story_player_branch_poll_stalled_total",
			Help: "Total number of branch waits that gave up after the maximum number of attempts.",
		},
	)
	activePlayers = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "story_player_active_players",
			Help: "Number of players (browser tabs) currently held in memory.",
		},
	)
	sessionStoreEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_player_session_store_events_total",
			Help: "Session store events: saved, loaded, migrated, corrupted, cleared.",
		},
		[]string{"event"},
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
}

// ObserveBackendRequest учитывает один запрос к бэкенду историй.
func ObserveBackendRequest(op, outcome string, elapsed time.Duration) {
	backendRequests.WithLabelValues(op, outcome).Inc()
	backendLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncBackendMalformed учитывает ответ бэкенда, который не удалось разобрать.
// Сам запрос уже учтен в ObserveBackendRequest.
func IncBackendMalformed(op string) {
	backendMalformed.WithLabelValues(op).Inc()
}

// IncBranchPoll учитывает одну попытку опроса веток.
func IncBranchPoll(result string) {
	branchPollAttempts.WithLabelValues(result).Inc()
}

// IncBranchPollStalled учитывает исчерпание попыток опроса.
func IncBranchPollStalled() {
	branchPollStalled.Inc()
}

// SetActivePlayers выставляет число активных плееров.
func SetActivePlayers(n int) {
	activePlayers.Set(float64(n))
}

// IncSessionStore учитывает событие хранилища сессий.
func IncSessionStore(event string) {
	sessionStoreEvents.WithLabelValues(event).Inc()
}

// Handler отдает метрики из Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
