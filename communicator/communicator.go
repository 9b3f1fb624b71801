// Package communicator manages client-side proxies: it resolves object
// names to proxies, caches them, and wires registry-backed endpoint
// refresh for names without direct endpoints.
package communicator

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tars-rpc/config"
	"tars-rpc/endpoint"
	"tars-rpc/filter"
	"tars-rpc/logger"
	"tars-rpc/protocol"
	"tars-rpc/registry"
	"tars-rpc/selector"
	"tars-rpc/servant"
	"tars-rpc/transport"
)

// Communicator is the client-side entry point. Most processes share the
// global one; tests and multi-tenant clients can create their own.
type Communicator struct {
	mu         sync.RWMutex
	config     config.Client
	properties map[string]string
	proxies    map[string]*servant.Proxy
	managers   map[string]*registry.Manager
	registrar  registry.Registrar
	filters    *filter.Filters
	log        *zap.Logger
}

var (
	globalOnce sync.Once
	global     *Communicator
)

// Global returns the process-wide communicator, creating it on first use.
func Global() *Communicator {
	globalOnce.Do(func() { global = New() })
	return global
}

// New creates a communicator with default configuration.
func New() *Communicator {
	return &Communicator{
		config:     config.DefaultClient(),
		properties: map[string]string{},
		proxies:    map[string]*servant.Proxy{},
		managers:   map[string]*registry.Manager{},
		filters:    filter.New(),
		log:        logger.Named("communicator"),
	}
}

// WithConfig creates a communicator from an explicit client config.
func WithConfig(cfg config.Client) *Communicator {
	c := New()
	c.config = cfg
	if cfg.Locator != "" {
		c.SetLocator(cfg.Locator)
	}
	return c
}

// Config returns a copy of the client configuration.
func (c *Communicator) Config() config.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// SetLocator installs the registry locator and the query registrar built
// from it.
func (c *Communicator) SetLocator(locator string) {
	reg := registry.NewTarsRegistry(locator)
	c.mu.Lock()
	c.config.Locator = locator
	c.properties["locator"] = locator
	c.registrar = reg
	c.mu.Unlock()
}

// SetRegistrar installs an explicit registrar (e.g. the etcd backend).
func (c *Communicator) SetRegistrar(reg registry.Registrar) {
	c.mu.Lock()
	c.registrar = reg
	c.mu.Unlock()
}

// SetProperty stores an arbitrary property.
func (c *Communicator) SetProperty(key, value string) {
	c.mu.Lock()
	c.properties[key] = value
	c.mu.Unlock()
}

// Property returns a property value.
func (c *Communicator) Property(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.properties[key]
	return v, ok
}

// UseClientFilter registers a client middleware for proxies created after
// this call.
func (c *Communicator) UseClientFilter(mw filter.ClientMiddleware) {
	c.mu.Lock()
	c.filters.UseClient(mw)
	c.mu.Unlock()
}

// clientConfig derives the transport config from the client config.
func (c *Communicator) clientConfig() transport.ClientConfig {
	tc := transport.DefaultClientConfig()
	tc.QueueLen = c.config.QueueLen
	tc.IdleTimeout = c.config.IdleTimeoutDuration()
	tc.ReadTimeout = c.config.ReadTimeoutDuration()
	tc.WriteTimeout = c.config.WriteTimeoutDuration()
	tc.DialTimeout = c.config.DialTimeoutDuration()
	return tc
}

// StringToProxy resolves an object name to a (cached) servant proxy.
//
// "App.Server.Obj@tcp -h H -p P[:spec]*" connects directly;
// "App.Server.Obj" queries the registrar and keeps the endpoint list
// refreshed in the background.
func (c *Communicator) StringToProxy(objName string) (*servant.Proxy, error) {
	if objName == "" {
		return nil, fmt.Errorf("invalid argument: empty object name")
	}

	c.mu.RLock()
	if proxy, ok := c.proxies[objName]; ok {
		c.mu.RUnlock()
		return proxy, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if proxy, ok := c.proxies[objName]; ok {
		return proxy, nil
	}

	name, endpoints := endpoint.ParseObjName(objName)

	var manager *registry.Manager
	if len(endpoints) == 0 {
		if c.registrar == nil {
			return nil, &protocol.ServiceNotFoundError{Name: name}
		}
		manager = registry.NewManager(name, c.registrar).
			WithInterval(c.config.RefreshEndpointIntervalDuration())
		if err := manager.Refresh(); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", name, err)
		}
		endpoints = manager.Active()
		if len(endpoints) == 0 {
			return nil, &protocol.ServiceNotFoundError{Name: name}
		}
	}

	proxy := servant.NewProxyWith(name, endpoints, c.clientConfig(),
		selector.NewRoundRobin(), c.filters)
	proxy.SetTimeout(c.config.AsyncInvokeTimeoutDuration())

	if manager != nil {
		manager.OnUpdate(proxy.RefreshEndpoints)
		manager.Start()
		c.managers[objName] = manager
	}

	c.proxies[objName] = proxy
	c.log.Info("proxy created", zap.String("object", name),
		zap.Int("endpoints", len(endpoints)), zap.Bool("registry", manager != nil))
	return proxy, nil
}

// Close shuts down every proxy and refresh loop.
func (c *Communicator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, m := range c.managers {
		m.Stop()
		delete(c.managers, name)
	}
	for name, p := range c.proxies {
		p.Close()
		delete(c.proxies, name)
	}
}
