package registry

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"tars-rpc/endpoint"
	"tars-rpc/logger"
)

// etcdPrefix roots every registration key:
// /tars/<object-name>/<host:port> → endpoint spec string.
const etcdPrefix = "/tars/"

// EtcdRegistry is the self-registration backend the query registrar
// lacks. Servants register under a TTL lease that a background KeepAlive
// renews, so a crashed server disappears on its own when the lease
// expires.
type EtcdRegistry struct {
	client *clientv3.Client
	ttl    int64
	log    *zap.Logger
}

// NewEtcdRegistry connects to the etcd endpoints with a 10 s lease TTL.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{
		client: c,
		ttl:    10,
		log:    logger.Named("registry.etcd"),
	}, nil
}

// WithTTL sets the lease TTL in seconds.
func (r *EtcdRegistry) WithTTL(seconds int64) *EtcdRegistry {
	if seconds > 0 {
		r.ttl = seconds
	}
	return r
}

func key(objName string, ep endpoint.Endpoint) string {
	return etcdPrefix + objName + "/" + ep.Address()
}

// Register stores the servant's endpoint under a lease and starts the
// keep-alive renewal.
func (r *EtcdRegistry) Register(instance *ServantInstance) error {
	ctx := context.Background()

	lease, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, key(instance.ObjectName(), instance.Endpoint),
		instance.Endpoint.String(), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	// Drain the keep-alive responses so the channel never fills up.
	go func() {
		for range ch {
		}
		r.log.Warn("keep-alive ended", zap.String("object", instance.ObjectName()))
	}()

	r.log.Info("servant registered",
		zap.String("object", instance.ObjectName()),
		zap.String("endpoint", instance.Endpoint.Address()))
	return nil
}

// Deregister deletes the servant's key so clients stop routing here.
// Server shutdown does not call it; the caller invokes it explicitly.
func (r *EtcdRegistry) Deregister(instance *ServantInstance) error {
	_, err := r.client.Delete(context.Background(), key(instance.ObjectName(), instance.Endpoint))
	return err
}

// QueryServant lists the registered endpoints of an object. Everything
// registered counts as active; etcd's lease expiry removes dead entries.
func (r *EtcdRegistry) QueryServant(id string) ([]endpoint.Endpoint, []endpoint.Endpoint, error) {
	resp, err := r.client.Get(context.Background(), etcdPrefix+id+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, nil, err
	}

	active := make([]endpoint.Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ep, ok := endpoint.Parse(string(kv.Value))
		if !ok {
			r.log.Warn("skipping malformed registration", zap.ByteString("key", kv.Key))
			continue
		}
		active = append(active, ep)
	}
	return active, nil, nil
}

// QueryServantBySet filters the registered endpoints by SET id.
func (r *EtcdRegistry) QueryServantBySet(id, set string) ([]endpoint.Endpoint, []endpoint.Endpoint, error) {
	active, inactive, err := r.QueryServant(id)
	if err != nil {
		return nil, nil, err
	}
	filtered := active[:0]
	for _, ep := range active {
		if ep.SetID == set {
			filtered = append(filtered, ep)
		}
	}
	return filtered, inactive, nil
}

// Watch emits the refreshed endpoint list on every change under the
// object's prefix. The channel closes when ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, id string) <-chan []endpoint.Endpoint {
	out := make(chan []endpoint.Endpoint, 1)
	go func() {
		defer close(out)
		watchCh := r.client.Watch(ctx, etcdPrefix+id+"/", clientv3.WithPrefix())
		for range watchCh {
			// Re-list on any change rather than folding individual events.
			active, _, err := r.QueryServant(id)
			if err != nil {
				r.log.Error("re-list after watch event failed", zap.Error(err))
				continue
			}
			select {
			case out <- active:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
