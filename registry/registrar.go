package registry

import "tars-rpc/endpoint"

// ServantInstance describes one servant for registration.
type ServantInstance struct {
	App         string
	Server      string
	Servant     string
	EnableSet   bool
	SetDivision string
	Protocol    string
	Endpoint    endpoint.Endpoint
}

// NewServantInstance creates an instance with the tars protocol.
func NewServantInstance(app, server, servant string, ep endpoint.Endpoint) *ServantInstance {
	return &ServantInstance{
		App:      app,
		Server:   server,
		Servant:  servant,
		Protocol: "tars",
		Endpoint: ep,
	}
}

// ObjectName returns "App.Server.Servant".
func (s *ServantInstance) ObjectName() string {
	return s.App + "." + s.Server + "." + s.Servant
}

// Registrar resolves object names to endpoints and, where the backend
// supports it, registers servants.
type Registrar interface {
	// Register announces a servant instance.
	Register(instance *ServantInstance) error
	// Deregister withdraws a servant instance.
	Deregister(instance *ServantInstance) error
	// QueryServant returns the (active, inactive) endpoints of an object.
	QueryServant(id string) ([]endpoint.Endpoint, []endpoint.Endpoint, error)
	// QueryServantBySet restricts the query to one SET division.
	QueryServantBySet(id, set string) ([]endpoint.Endpoint, []endpoint.Endpoint, error)
}

// Direct is the no-discovery registrar: a fixed endpoint list.
type Direct struct {
	endpoints []endpoint.Endpoint
}

// NewDirect creates a registrar over a fixed list.
func NewDirect(endpoints []endpoint.Endpoint) *Direct {
	return &Direct{endpoints: endpoints}
}

// Register is a no-op in direct mode.
func (d *Direct) Register(*ServantInstance) error { return nil }

// Deregister is a no-op in direct mode.
func (d *Direct) Deregister(*ServantInstance) error { return nil }

// QueryServant returns the fixed list as active.
func (d *Direct) QueryServant(string) ([]endpoint.Endpoint, []endpoint.Endpoint, error) {
	out := make([]endpoint.Endpoint, len(d.endpoints))
	copy(out, d.endpoints)
	return out, nil, nil
}

// QueryServantBySet returns the fixed list regardless of SET.
func (d *Direct) QueryServantBySet(string, string) ([]endpoint.Endpoint, []endpoint.Endpoint, error) {
	return d.QueryServant("")
}
