// Package subscription implements the two mutually-exclusive
// ingestion strategies of spec.md §4.6: a periodic batch-read
// (polling mode) and a server-side monitored-item subscription
// (monitored mode), both feeding the registry and the event plane.
// Monitored mode goes through a per-tag executor pool that preserves
// per-tag ordering; polling mode goes through the pipeline's read path.
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/monitor"

	"github.com/scadaworks/opcua-runtime/internal/errs"
	"github.com/scadaworks/opcua-runtime/internal/events"
	"github.com/scadaworks/opcua-runtime/internal/pipeline"
	"github.com/scadaworks/opcua-runtime/internal/registry"
	"github.com/scadaworks/opcua-runtime/internal/supervisor"
)

// Engine owns the active subscription mode. At most one of the two
// ingestion loops runs at a time.
type Engine struct {
	cfg    Config
	reg    *registry.Registry
	sup    *supervisor.Supervisor
	pool   *pipeline.Pool
	events *events.Plane
	lanes  *executorPool

	mu      sync.Mutex
	nodeMon *monitor.NodeMonitor
	monSub  *monitor.Subscription
	cancel  context.CancelFunc
	running bool
	nextMI  uint32
}

// New constructs an Engine in the stopped state. The per-tag executor
// pool is not created here — it is built fresh on every Start and torn
// down on the matching Stop, so a Start/Stop/Start cycle never
// dispatches into executor goroutines that have already exited.
func New(cfg Config, reg *registry.Registry, sup *supervisor.Supervisor, pool *pipeline.Pool, plane *events.Plane) *Engine {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg, reg: reg, sup: sup, pool: pool, events: plane}
}

// Start begins ingestion in the engine's configured Mode. Calling
// Start while already running is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.lanes = newExecutorPool()
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	switch e.cfg.Mode {
	case ModeMonitored:
		return e.startMonitored(runCtx)
	case ModePolling:
		go e.pollLoop(runCtx)
		return nil
	default:
		return errs.New(errs.InvalidPolicy, "subscription mode must be polling or monitored")
	}
}

// Stop tears down whichever ingestion loop is active.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	if e.cancel != nil {
		e.cancel()
	}
	e.teardownMonitoredLocked()
	if e.lanes != nil {
		e.lanes.stop()
		e.lanes = nil
	}
}

func (e *Engine) teardownMonitoredLocked() {
	if e.monSub != nil {
		_ = e.monSub.Unsubscribe(context.Background())
		e.monSub = nil
	}
	e.nodeMon = nil
	for _, tag := range e.reg.ListTags() {
		if h, err := e.reg.Get(tag); err == nil {
			h.ClearSubscription()
		}
	}
}

func (e *Engine) client() *opcua.Client {
	return e.sup.Client()
}

// Mode reports the engine's currently configured ingestion mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Mode
}

// SetMode changes the ingestion mode. It only takes effect on the next
// Start — calling it while running returns errs.InvalidPolicy, since
// switching modes mid-flight would leave stale monitored items or a
// dangling poll ticker.
func (e *Engine) SetMode(m Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errs.New(errs.InvalidPolicy, "cannot change subscription mode while running")
	}
	e.cfg.Mode = m
	return nil
}

// SetPollingInterval changes the polling-mode tick interval for the
// next Start, under the same not-while-running restriction as SetMode.
func (e *Engine) SetPollingInterval(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errs.New(errs.InvalidPolicy, "cannot change polling interval while running")
	}
	e.cfg.PollingInterval = d
	return nil
}
