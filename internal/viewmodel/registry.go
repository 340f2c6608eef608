package viewmodel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry keeps one Model per browser id and drops models that have been
// idle longer than the configured window.
type Registry struct {
	api    API
	store  SessionStore
	logger *zap.Logger
	idle   time.Duration
	now    func() time.Time

	mu     sync.Mutex
	models map[string]*Model
}

func NewRegistry(api API, store SessionStore, idle time.Duration, logger *zap.Logger) *Registry {
	if idle <= 0 {
		idle = time.Hour
	}
	return &Registry{
		api:    api,
		store:  store,
		logger: logger,
		idle:   idle,
		now:    time.Now,
		models: make(map[string]*Model),
	}
}

// Get returns the model for browserID, creating and starting it on first
// use. Start runs outside the registry lock.
func (r *Registry) Get(ctx context.Context, browserID string) *Model {
	r.mu.Lock()
	m, ok := r.models[browserID]
	if !ok {
		m = New(browserID, r.api, r.store, r.logger)
		m.now = r.now
		m.lastSeen = r.now()
		r.models[browserID] = m
	}
	r.mu.Unlock()

	m.Start(ctx)
	m.Touch()
	return m
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.models)
}

// Sweep evicts idle models and returns how many were removed. Models with a
// request in flight are kept.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, m := range r.models {
		if m.idleSince(cutoff) {
			delete(r.models, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("evicted idle view models", zap.Int("count", n), zap.Int("remaining", r.Len()))
			}
		}
	}
}
