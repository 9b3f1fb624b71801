package logger

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"tars-rpc/protocol"
	"tars-rpc/transport"
)

// RemoteConfig configures a RemoteWriter.
type RemoteConfig struct {
	// Address of the tars.tarslog.LogObj service.
	Address string
	// App and Server identify the writing process.
	App    string
	Server string
	// FileName is the remote log file base name.
	FileName string
	// SetDivision tags the SET this process belongs to, if any.
	SetDivision string
	// Interval between flushes. Default 1 s.
	Interval time.Duration
	// MaxBuffer bounds buffered lines between flushes; overflow drops the
	// oldest lines. Default 10000.
	MaxBuffer int
}

// RemoteWriter batches log lines and ships them to the remote log service
// as oneway loggerbyInfo calls.
type RemoteWriter struct {
	info   *protocol.LogInfo
	client *transport.SimpleClient
	log    *zap.Logger

	mu     sync.Mutex
	lines  []string
	max    int
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewRemoteWriter connects to the log service and starts the flush loop.
func NewRemoteWriter(cfg RemoteConfig) (*RemoteWriter, error) {
	client, err := transport.DialSimple(cfg.Address)
	if err != nil {
		return nil, err
	}
	info := protocol.NewLogInfo(cfg.App, cfg.Server, cfg.FileName)
	info.SetDivision = cfg.SetDivision

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	max := cfg.MaxBuffer
	if max <= 0 {
		max = 10000
	}

	w := &RemoteWriter{
		info:   info,
		client: client,
		log:    Named("logger.remote").With(zap.String("remote", cfg.Address)),
		max:    max,
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.flushLoop()
	return w, nil
}

// Write buffers one log line for the next flush.
func (w *RemoteWriter) Write(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.lines) >= w.max {
		w.lines = w.lines[1:]
	}
	w.lines = append(w.lines, line)
}

// flushLoop ships buffered lines on every tick and once more on Close.
func (w *RemoteWriter) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ticker.C:
			w.flush()
		case <-w.done:
			w.flush()
			return
		}
	}
}

// flush sends the buffered lines as one oneway call.
func (w *RemoteWriter) flush() {
	w.mu.Lock()
	lines := w.lines
	w.lines = nil
	w.mu.Unlock()
	if len(lines) == 0 {
		return
	}

	req := protocol.NewRequest()
	req.PacketType = protocol.PacketOneway
	req.ServantName = protocol.LogServant
	req.FuncName = protocol.LoggerByInfo
	req.Buffer = protocol.EncodeLogPayload(w.info, lines)

	if err := w.client.SendOneway(req); err != nil {
		w.log.Warn("remote log flush failed", zap.Error(err), zap.Int("lines", len(lines)))
	}
}

// Close flushes once more and stops the loop.
func (w *RemoteWriter) Close() {
	w.ticker.Stop()
	close(w.done)
	w.wg.Wait()
	w.client.Close()
}
