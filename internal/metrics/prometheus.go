// Package metrics exposes Prometheus counters for progression activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/focusnest/progression-service/internal/progression"
)

// Manager owns the progression metrics and implements progression.Recorder.
type Manager struct {
	namespace string
	subsystem string
	enabled   bool
	registry  *prometheus.Registry

	experienceAwarded   prometheus.Counter
	levelUps            prometheus.Counter
	badgesUnlocked      *prometheus.CounterVec
	challengesCompleted *prometheus.CounterVec
	challengeResets     *prometheus.CounterVec
	challengesOnBoard   *prometheus.GaugeVec
	storeFailures       *prometheus.CounterVec
}

var _ progression.Recorder = (*Manager)(nil)

// NewManager creates a metrics manager on its own registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "tutor",
		subsystem: "progression",
		enabled:   true,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.experienceAwarded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "experience_awarded_total",
		Help:      "Total experience points credited to learners",
	})

	m.levelUps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "level_ups_total",
		Help:      "Total levels gained across all learners",
	})

	m.badgesUnlocked = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "badges_unlocked_total",
		Help:      "Badges unlocked, by badge category",
	}, []string{"category"})

	m.challengesCompleted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "challenges_completed_total",
		Help:      "Challenge completions, by challenge type",
	}, []string{"type"})

	m.challengeResets = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "challenge_resets_total",
		Help:      "Challenge board resets, by challenge type",
	}, []string{"type"})

	m.challengesOnBoard = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "challenges_on_board",
		Help:      "Challenge instances on the board after the last reset, by type",
	}, []string{"type"})

	m.storeFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_failures_total",
		Help:      "Failed profile store writes, by engine operation",
	}, []string{"operation"})
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExperienceAwarded records credited experience.
func (m *Manager) ExperienceAwarded(amount int) {
	if m.enabled && amount > 0 {
		m.experienceAwarded.Add(float64(amount))
	}
}

// LevelUp records levels gained by one operation.
func (m *Manager) LevelUp(levels int) {
	if m.enabled && levels > 0 {
		m.levelUps.Add(float64(levels))
	}
}

// BadgeUnlocked records a newly unlocked badge.
func (m *Manager) BadgeUnlocked(category progression.BadgeCategory) {
	if m.enabled {
		m.badgesUnlocked.WithLabelValues(string(category)).Inc()
	}
}

// ChallengeCompleted records a challenge completion.
func (m *Manager) ChallengeCompleted(t progression.ChallengeType) {
	if m.enabled {
		m.challengesCompleted.WithLabelValues(string(t)).Inc()
	}
}

// ChallengesReset records a board reset and the number of fresh instances.
func (m *Manager) ChallengesReset(t progression.ChallengeType, count int) {
	if m.enabled {
		m.challengeResets.WithLabelValues(string(t)).Inc()
		m.challengesOnBoard.WithLabelValues(string(t)).Set(float64(count))
	}
}

// StoreFailure records a failed durable write.
func (m *Manager) StoreFailure(operation string) {
	if m.enabled {
		m.storeFailures.WithLabelValues(operation).Inc()
	}
}
