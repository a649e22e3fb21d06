package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/store"
)

// Status represents the health status of the store.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON responses.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StoreHealth holds the most recent health information for the store.
type StoreHealth struct {
	Status              Status    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Pinger is the part of the store manager the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker periodically pings the store once it has been connected.
type Checker struct {
	mu      sync.RWMutex
	state   StoreHealth
	pinger  Pinger
	metrics *metrics.Collector

	interval         time.Duration
	failureThreshold int
	timeout          time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a new health checker with configurable parameters.
func NewChecker(p Pinger, m *metrics.Collector, hcCfg config.HealthCheckConfig) *Checker {
	return &Checker{
		pinger:           p,
		metrics:          m,
		interval:         hcCfg.Interval,
		failureThreshold: hcCfg.FailureThreshold,
		timeout:          hcCfg.Timeout,
		stopCh:           make(chan struct{}),
	}
}

// Start begins periodic health checking.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	slog.Info("health checker started", "interval", c.interval, "threshold", c.failureThreshold)
}

// Stop stops the health checker. Safe to call multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	slog.Info("health checker stopped")
}

func (c *Checker) run() {
	c.Check(context.Background())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Check(context.Background())
		case <-c.stopCh:
			return
		}
	}
}

// Check pings the store once and records the result. A store that has not
// been connected yet is skipped and leaves the status unchanged.
func (c *Checker) Check(ctx context.Context) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.pinger.Ping(ctx)
	if errors.Is(err, store.ErrNotConnected) {
		return
	}
	if c.metrics != nil {
		c.metrics.HealthCheckCompleted(time.Since(start))
	}

	if err != nil {
		c.setLastError(err.Error())
	}
	c.updateStatus(err == nil)
}

func (c *Checker) setLastError(errMsg string) {
	c.mu.Lock()
	c.state.LastError = errMsg
	c.mu.Unlock()
}

func (c *Checker) updateStatus(healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.LastCheck = time.Now()

	if healthy {
		if c.state.ConsecutiveFailures > 0 {
			slog.Info("store recovered", "failures", c.state.ConsecutiveFailures)
		}
		c.state.Status = StatusHealthy
		c.state.ConsecutiveFailures = 0
		c.state.LastError = ""
	} else {
		c.state.ConsecutiveFailures++
		if c.state.ConsecutiveFailures >= c.failureThreshold {
			if c.state.Status != StatusUnhealthy {
				slog.Warn("store marked unhealthy", "failures", c.state.ConsecutiveFailures, "error", c.state.LastError)
			}
			c.state.Status = StatusUnhealthy
		}
	}

	if c.metrics != nil {
		c.metrics.SetStoreHealth(c.state.Status == StatusHealthy)
	}
}

// IsHealthy reports whether the store is healthy. Unknown counts as healthy.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Status != StatusUnhealthy
}

// GetStatus returns a snapshot of the store health.
func (c *Checker) GetStatus() StoreHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
