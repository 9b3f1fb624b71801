// Package stat collects call statistics and reports them to the
// tars.tarsstat service in aggregated batches.
package stat

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"tars-rpc/logger"
	"tars-rpc/protocol"
	"tars-rpc/transport"
)

// Config configures a Reporter.
type Config struct {
	// Address of the tars.tarsstat.StatObj service. Empty disables
	// reporting; entries aggregate and are dropped at flush time.
	Address string
	// Interval between report flushes. Default 10 s.
	Interval time.Duration
	// MasterName identifies this process as the caller.
	MasterName string
	// TarsVersion is stamped on every head.
	TarsVersion string
}

// Reporter aggregates per-edge call metrics and flushes them periodically
// as reportMicMsg calls.
type Reporter struct {
	config  Config
	localIP string
	log     *zap.Logger

	mu      sync.Mutex
	client  map[protocol.StatHead]*protocol.StatBody
	server  map[protocol.StatHead]*protocol.StatBody
	conn    *transport.SimpleClient
	stopped bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewReporter creates a reporter and starts its flush loop.
func NewReporter(config Config) *Reporter {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}
	if config.TarsVersion == "" {
		config.TarsVersion = "1.0.0"
	}
	r := &Reporter{
		config:  config,
		localIP: localIP(),
		log:     logger.Named("stat"),
		client:  map[protocol.StatHead]*protocol.StatBody{},
		server:  map[protocol.StatHead]*protocol.StatBody{},
		stopCh:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.flushLoop()
	return r
}

// localIP finds a non-loopback address for the master-ip field.
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return "127.0.0.1"
}

// head builds the client-side aggregation key for one call edge.
func (r *Reporter) head(servant, fn, slaveIP string, slavePort int32, ret int32) protocol.StatHead {
	return protocol.StatHead{
		MasterName:    r.config.MasterName,
		SlaveName:     servant,
		InterfaceName: fn,
		MasterIP:      r.localIP,
		SlaveIP:       slaveIP,
		SlavePort:     slavePort,
		ReturnValue:   ret,
		TarsVersion:   r.config.TarsVersion,
	}
}

// add merges one sample into an aggregation map.
func (r *Reporter) add(m map[protocol.StatHead]*protocol.StatBody, head protocol.StatHead, fill func(*protocol.StatBody)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	body, ok := m[head]
	if !ok {
		body = protocol.NewStatBody()
		m[head] = body
	}
	fill(body)
}

// ReportSuccess records a successful client call.
func (r *Reporter) ReportSuccess(servant, fn, slaveIP string, slavePort int32, costMs int64) {
	r.add(r.client, r.head(servant, fn, slaveIP, slavePort, protocol.ServerSuccess), func(b *protocol.StatBody) {
		b.Count++
		b.AddResponseTime(costMs)
	})
}

// ReportTimeout records a client call that timed out.
func (r *Reporter) ReportTimeout(servant, fn, slaveIP string, slavePort int32, costMs int64) {
	r.add(r.client, r.head(servant, fn, slaveIP, slavePort, protocol.InvokeTimeout), func(b *protocol.StatBody) {
		b.TimeoutCount++
		b.AddResponseTime(costMs)
	})
}

// ReportException records a client call that failed with ret.
func (r *Reporter) ReportException(servant, fn, slaveIP string, slavePort int32, ret int32, costMs int64) {
	r.add(r.client, r.head(servant, fn, slaveIP, slavePort, ret), func(b *protocol.StatBody) {
		b.ExecCount++
		b.AddResponseTime(costMs)
	})
}

// ReportServer records one dispatch observed on the server side.
func (r *Reporter) ReportServer(fn, clientIP string, ret int32, costMs int64) {
	head := protocol.StatHead{
		MasterName:    clientIP,
		SlaveName:     r.config.MasterName,
		InterfaceName: fn,
		MasterIP:      clientIP,
		SlaveIP:       r.localIP,
		ReturnValue:   ret,
		TarsVersion:   r.config.TarsVersion,
	}
	r.add(r.server, head, func(b *protocol.StatBody) {
		if ret == protocol.ServerSuccess {
			b.Count++
		} else {
			b.ExecCount++
		}
		b.AddResponseTime(costMs)
	})
}

// flushLoop ships aggregates every interval and once more on Stop.
func (r *Reporter) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-r.stopCh:
			r.flush()
			return
		}
	}
}

// swap takes the current aggregates, leaving fresh maps behind.
func (r *Reporter) swap() (map[protocol.StatHead]*protocol.StatBody, map[protocol.StatHead]*protocol.StatBody) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, server := r.client, r.server
	r.client = map[protocol.StatHead]*protocol.StatBody{}
	r.server = map[protocol.StatHead]*protocol.StatBody{}
	return client, server
}

// flush reports both directions. Without a configured address the batch
// is dropped, keeping memory bounded.
func (r *Reporter) flush() {
	client, server := r.swap()
	if r.config.Address == "" {
		return
	}
	if len(client) > 0 {
		r.report(client, true)
	}
	if len(server) > 0 {
		r.report(server, false)
	}
}

// report sends one reportMicMsg call.
func (r *Reporter) report(stats map[protocol.StatHead]*protocol.StatBody, fromClient bool) {
	conn, err := r.connect()
	if err != nil {
		r.log.Warn("stat server unreachable, dropping batch",
			zap.Error(err), zap.Int("entries", len(stats)))
		return
	}

	req := protocol.NewRequest()
	req.ServantName = protocol.StatServant
	req.FuncName = protocol.ReportMicMsg
	req.Buffer = protocol.EncodeStatPayload(stats, fromClient)

	if _, err := conn.Invoke(req); err != nil {
		r.log.Warn("stat report failed", zap.Error(err), zap.Int("entries", len(stats)))
	}
}

// connect lazily dials the stat service and reuses the connection.
func (r *Reporter) connect() (*transport.SimpleClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := transport.DialSimple(r.config.Address)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	return conn, nil
}

// Stop flushes once more and ends the loop.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	r.mu.Lock()
	r.stopped = true
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.mu.Unlock()
}
