package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"tars-rpc/endpoint"
	"tars-rpc/logger"
)

// Manager caches one object's endpoints and refreshes them from a
// registrar on an interval, pushing each refreshed list to a callback
// (typically ServantProxy.RefreshEndpoints).
type Manager struct {
	objName   string
	registrar Registrar
	interval  time.Duration
	log       *zap.Logger

	mu       sync.RWMutex
	active   []endpoint.Endpoint
	inactive []endpoint.Endpoint
	onUpdate func([]endpoint.Endpoint)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager creates a manager for one object with the default 60 s
// refresh interval.
func NewManager(objName string, registrar Registrar) *Manager {
	return &Manager{
		objName:   objName,
		registrar: registrar,
		interval:  60 * time.Second,
		log:       logger.Named("registry.manager").With(zap.String("object", objName)),
		stopCh:    make(chan struct{}),
	}
}

// WithInterval sets the refresh period.
func (m *Manager) WithInterval(d time.Duration) *Manager {
	if d > 0 {
		m.interval = d
	}
	return m
}

// OnUpdate installs the callback invoked with every refreshed active
// list.
func (m *Manager) OnUpdate(fn func([]endpoint.Endpoint)) {
	m.mu.Lock()
	m.onUpdate = fn
	m.mu.Unlock()
}

// Refresh queries the registrar once and publishes the result.
func (m *Manager) Refresh() error {
	active, inactive, err := m.registrar.QueryServant(m.objName)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.active = active
	m.inactive = inactive
	fn := m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(active)
	}
	return nil
}

// Active returns the cached active endpoints.
func (m *Manager) Active() []endpoint.Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]endpoint.Endpoint, len(m.active))
	copy(out, m.active)
	return out
}

// Inactive returns the cached inactive endpoints.
func (m *Manager) Inactive() []endpoint.Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]endpoint.Endpoint, len(m.inactive))
	copy(out, m.inactive)
	return out
}

// Start launches the background refresh loop.
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Refresh(); err != nil {
					m.log.Error("endpoint refresh failed", zap.Error(err))
				}
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop ends the refresh loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
