package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Health is the last known state of a storage backend
type Health struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// NewHealth creates a health record stamped with the current time
func NewHealth(status, message string, err error) Health {
	h := Health{
		LastCheck: time.Now(),
		Status:    status,
		Message:   message,
	}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}

// HealthManager keeps backend health in memory for the health endpoint
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]Health
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]Health),
	}
}

// UpdateHealth records the health of a backend
func (hm *HealthManager) UpdateHealth(backend string, h Health) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[backend] = h
}

// GetHealth returns the health of one backend
func (hm *HealthManager) GetHealth(backend string) (Health, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	h, ok := hm.health[backend]
	return h, ok
}

// GetAllHealth returns a copy of every recorded backend health
func (hm *HealthManager) GetAllHealth() map[string]Health {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]Health, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy reports whether backend was healthy within maxAge
func (hm *HealthManager) IsHealthy(backend string, maxAge time.Duration) bool {
	h, ok := hm.GetHealth(backend)
	if !ok || time.Since(h.LastCheck) > maxAge {
		return false
	}
	return h.Status == StatusHealthy
}

// CheckHealth pings store once and records the outcome
func (hm *HealthManager) CheckHealth(ctx context.Context, backend string, store RunStore) Health {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	h := NewHealth(StatusHealthy, backend+" connection active", nil)
	if err := store.Ping(ctx); err != nil {
		h = NewHealth(StatusUnhealthy, backend+" ping failed", err)
	}
	hm.UpdateHealth(backend, h)
	return h
}

// StartHealthMonitor checks the store immediately and then every interval
// until ctx is cancelled
func (hm *HealthManager) StartHealthMonitor(ctx context.Context, wg *sync.WaitGroup, backend string, store RunStore, interval time.Duration, logger *zap.SugaredLogger) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		update := func() {
			h := hm.CheckHealth(ctx, backend, store)
			if h.Status != StatusHealthy {
				logger.Errorf("%s health check failed: %s", backend, h.Error)
				return
			}
			logger.Debugf("updated %s health status: %s", backend, h.Status)
		}

		update()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				update()
			case <-ctx.Done():
				logger.Infof("stopping %s health monitor", backend)
				return
			}
		}
	}()
}
