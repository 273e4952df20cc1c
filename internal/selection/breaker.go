package selection

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/piwi3910/BarCut/internal/metrics"
)

// BreakerConfig holds the circuit breaker settings shared by all algorithms.
type BreakerConfig struct {
	MaxRequests           uint32        `mapstructure:"max_requests"`            // requests allowed while half-open
	Interval              time.Duration `mapstructure:"interval"`                // clears counts while closed, 0 = never
	Timeout               time.Duration `mapstructure:"timeout"`                 // open to half-open delay
	FailureThreshold      uint32        `mapstructure:"failure_threshold"`       // consecutive failures to trip
	FailureRatioThreshold float64       `mapstructure:"failure_ratio_threshold"` // failure ratio to trip
	MinRequestsToTrip     uint32        `mapstructure:"min_requests_to_trip"`    // requests before the ratio counts
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:           1,
		Interval:              10 * time.Minute,
		Timeout:               time.Minute,
		FailureThreshold:      3,
		FailureRatioThreshold: 0.6,
		MinRequestsToTrip:     10,
	}
}

// breakers keeps one circuit breaker per algorithm. A tripped breaker marks
// the algorithm as degraded until the breaker half-opens again.
type breakers struct {
	mu      sync.Mutex
	config  BreakerConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	byName  map[string]*gobreaker.CircuitBreaker
}

func newBreakers(cfg BreakerConfig, logger *zap.Logger, m *metrics.Metrics) *breakers {
	return &breakers{
		config:  cfg,
		logger:  logger,
		metrics: m,
		byName:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// get returns the breaker of an algorithm, creating it on first use.
func (b *breakers) get(name string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.byName[name]; ok {
		return cb
	}

	cfg := b.config
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.FailureThreshold > 0 && counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if cfg.MinRequestsToTrip > 0 && counts.Requests >= cfg.MinRequestsToTrip {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed",
				zap.String("algorithm", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			b.metrics.SetBreakerState(name, int(to))
		},
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	b.byName[name] = cb
	b.metrics.SetBreakerState(name, int(gobreaker.StateClosed))
	return cb
}

// state returns the breaker state of an algorithm.
func (b *breakers) state(name string) gobreaker.State {
	return b.get(name).State()
}
