package registry

import (
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tars-rpc/codec"
	"tars-rpc/endpoint"
	"tars-rpc/logger"
	"tars-rpc/protocol"
	"tars-rpc/transport"
)

// TarsRegistry queries the tars.tarsregistry.QueryObj servant for
// endpoints. It spreads queries round-robin over the locator's nodes,
// records per-node failures in circuit breakers, and fails over to the
// next distinct node on error.
type TarsRegistry struct {
	locator  string
	nodes    []string
	breakers *Breakers
	index    atomic.Uint64
	timeout  time.Duration
	log      *zap.Logger

	// dial is replaceable in tests.
	dial func(address string, timeout time.Duration) (queryClient, error)
}

// queryClient is the slice of transport.SimpleClient the registrar uses.
type queryClient interface {
	Invoke(req *protocol.RequestPacket) (*protocol.ResponsePacket, error)
	Close()
}

// NewTarsRegistry parses the locator and creates the registrar.
func NewTarsRegistry(locator string) *TarsRegistry {
	nodes := parseLocatorNodes(locator)
	log := logger.Named("registry.tars")
	log.Info("registry initialized", zap.Int("nodes", len(nodes)), zap.Strings("addresses", nodes))
	return &TarsRegistry{
		locator:  locator,
		nodes:    nodes,
		breakers: NewBreakers(),
		timeout:  5 * time.Second,
		log:      log,
		dial: func(address string, timeout time.Duration) (queryClient, error) {
			return transport.DialSimpleTimeout(address, timeout)
		},
	}
}

// WithTimeout sets the per-query timeout.
func (r *TarsRegistry) WithTimeout(d time.Duration) *TarsRegistry {
	r.timeout = d
	return r
}

// Locator returns the locator string.
func (r *TarsRegistry) Locator() string { return r.locator }

// Nodes returns the parsed node addresses.
func (r *TarsRegistry) Nodes() []string { return r.nodes }

// Breakers exposes the circuit breakers, mainly for inspection.
func (r *TarsRegistry) Breakers() *Breakers { return r.breakers }

// AvailableNodeCount returns how many nodes are currently usable.
func (r *TarsRegistry) AvailableNodeCount() int {
	return r.breakers.AvailableCount(r.nodes)
}

// parseLocatorNodes extracts "host:port" node addresses from a locator.
// Both the single form "Obj@tcp -h A -p 1" and the colon-separated form
// "Obj@tcp -h A -p 1:tcp -h B -p 2" are accepted; unknown tokens are
// ignored.
func parseLocatorNodes(locator string) []string {
	_, specs, found := strings.Cut(locator, "@")
	if !found {
		return nil
	}
	var nodes []string
	for _, ep := range endpoint.ParseList(specs) {
		nodes = append(nodes, ep.Address())
	}
	return nodes
}

// selectNode picks the next node round-robin among the available set.
// When every breaker is open it still returns a node from the full set —
// the forced half-open probe that lets a recovered registry come back.
func (r *TarsRegistry) selectNode() (string, bool) {
	available := r.breakers.FilterAvailable(r.nodes)
	if len(available) == 0 {
		if len(r.nodes) == 0 {
			return "", false
		}
		r.log.Warn("all registry nodes circuit-open, probing anyway")
		idx := r.index.Add(1) % uint64(len(r.nodes))
		return r.nodes[idx], true
	}
	idx := r.index.Add(1) % uint64(len(available))
	return available[idx], true
}

// Register is handled by the node agent in a full deployment; the query
// registrar does not implement it.
func (r *TarsRegistry) Register(*ServantInstance) error {
	r.log.Warn("register not supported by the query registrar")
	return nil
}

// Deregister is likewise not implemented by the query registrar.
func (r *TarsRegistry) Deregister(*ServantInstance) error {
	r.log.Warn("deregister not supported by the query registrar")
	return nil
}

// QueryServant returns all endpoints of the object.
func (r *TarsRegistry) QueryServant(id string) ([]endpoint.Endpoint, []endpoint.Endpoint, error) {
	return r.query(id, protocol.QueryFindObjectByID4All, "")
}

// QueryServantBySet returns the object's endpoints within one SET.
func (r *TarsRegistry) QueryServantBySet(id, set string) ([]endpoint.Endpoint, []endpoint.Endpoint, error) {
	return r.query(id, protocol.QueryFindObjectByIDSameSet, set)
}

// query runs the request with failover: each distinct node is tried at
// most once, and the last error surfaces when all fail.
func (r *TarsRegistry) query(id, fn, set string) ([]endpoint.Endpoint, []endpoint.Endpoint, error) {
	var lastErr error
	tried := map[string]bool{}

	for range r.nodes {
		node, ok := r.selectNode()
		if !ok {
			return nil, nil, protocol.ErrNoEndpoint
		}
		if tried[node] {
			continue
		}
		tried[node] = true

		active, inactive, err := r.queryNode(node, id, fn, set)
		breaker := r.breakers.Get(node)
		if err == nil {
			breaker.RecordSuccess()
			return active, inactive, nil
		}
		if breaker.RecordFailure() {
			r.log.Warn("registry node circuit opened", zap.String("node", node))
		}
		r.log.Warn("registry query failed, trying next node",
			zap.String("node", node), zap.Error(err))
		lastErr = err
	}

	if lastErr == nil {
		lastErr = protocol.ErrNoEndpoint
	}
	r.log.Error("all registry nodes failed", zap.String("object", id), zap.Error(lastErr))
	return nil, nil, lastErr
}

// queryNode performs one query against one node.
func (r *TarsRegistry) queryNode(node, id, fn, set string) ([]endpoint.Endpoint, []endpoint.Endpoint, error) {
	client, err := r.dial(node, r.timeout)
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	body := codec.NewBuffer()
	body.WriteString(id, 1)
	if set != "" {
		body.WriteString(set, 2)
	}

	req := protocol.NewRequest()
	req.ServantName = protocol.RegistryServant
	req.FuncName = fn
	req.Buffer = body.Bytes()
	req.Timeout = int32(r.timeout.Milliseconds())

	rsp, err := client.Invoke(req)
	if err != nil {
		return nil, nil, err
	}
	if !rsp.IsSuccess() {
		return nil, nil, &protocol.ServerError{Code: rsp.Ret, Message: rsp.ResultDesc}
	}

	reader := codec.NewReader(rsp.Buffer)
	if _, err := reader.ReadInt32(0, true); err != nil {
		return nil, nil, err
	}
	activeF, err := protocol.DecodeEndpointList(reader, 2, true)
	if err != nil {
		return nil, nil, err
	}
	inactiveF, err := protocol.DecodeEndpointList(reader, 3, false)
	if err != nil {
		return nil, nil, err
	}

	return convertEndpoints(activeF), convertEndpoints(inactiveF), nil
}

// convertEndpoints maps registry EndpointF records to endpoints.
func convertEndpoints(eps []protocol.EndpointF) []endpoint.Endpoint {
	out := make([]endpoint.Endpoint, 0, len(eps))
	for i := range eps {
		out = append(out, convertEndpoint(&eps[i]))
	}
	return out
}

func convertEndpoint(f *protocol.EndpointF) endpoint.Endpoint {
	ep := endpoint.New(f.Host, uint16(f.Port))
	switch f.IsTCP {
	case endpoint.ProtoSSL:
		ep.Proto = endpoint.ProtoSSL
	case endpoint.ProtoUDP:
		ep.Proto = endpoint.ProtoUDP
	default:
		ep.Proto = endpoint.ProtoTCP
	}
	if f.Timeout > 0 {
		ep.Timeout = int64(f.Timeout)
	}
	ep.Grid = f.Grid
	ep.QOS = f.QOS
	ep.Weight = uint32(f.Weight)
	ep.WeightType = f.WeightType
	ep.AuthType = f.AuthType
	ep.SetID = f.SetID
	return ep
}
