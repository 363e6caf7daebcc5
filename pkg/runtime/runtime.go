// Package runtime is the client-runtime facade of spec.md §6: it wires
// the registry, pipeline, supervisor, subscription engine, and event
// plane into the single object an external caller (the NATS bridge in
// cmd/opcuarund, or any other Go caller) holds. It mirrors
// opcuaclientmanager.h's OPCUAVariableManager public surface — connect/
// disconnect/reconnect, config setters, variable management, async/sync
// I/O, subscription control, statistics, and diagnostics — one method
// per original responsibility.
package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/scadaworks/opcua-runtime/internal/diagnostics"
	"github.com/scadaworks/opcua-runtime/internal/errs"
	"github.com/scadaworks/opcua-runtime/internal/events"
	"github.com/scadaworks/opcua-runtime/internal/metrics"
	"github.com/scadaworks/opcua-runtime/internal/pipeline"
	"github.com/scadaworks/opcua-runtime/internal/registry"
	"github.com/scadaworks/opcua-runtime/internal/stats"
	"github.com/scadaworks/opcua-runtime/internal/subscription"
	"github.com/scadaworks/opcua-runtime/internal/supervisor"
)

// Config is the runtime's startup configuration, normally produced by
// internal/config from a YAML bootstrap file.
type Config struct {
	EndpointURL    string
	SecurityPolicy string
	Identity       supervisor.Identity
	ApplicationURI string
	DialTimeout    time.Duration

	ReconnectPolicy    supervisor.ReconnectPolicy
	SubscriptionConfig subscription.Config

	RequestTimeout time.Duration // default synchronous I/O timeout
	MaxThreads     int           // pipeline worker count, 0 = pipeline.DefaultWorkers
}

// Runtime is the facade. The zero value is not usable; construct with
// New.
type Runtime struct {
	mu      sync.Mutex
	cfg     Config
	started bool

	reg    *registry.Registry
	events *events.Plane

	sessionStats *stats.Session
	latencies    *stats.Latencies
	errRing      *diagnostics.Ring
	metrics      *metrics.Collector

	sup *supervisor.Supervisor
	pool *pipeline.Pool
	sub  *subscription.Engine

	pending   map[uint64]time.Time
	pendingMu sync.Mutex

	dispatchCancel context.CancelFunc
	dispatchWG     sync.WaitGroup
}

// New constructs a Runtime in the Disconnected state. Nothing dials out
// until Connect is called.
func New(cfg Config) *Runtime {
	return &Runtime{
		cfg:          cfg,
		reg:          registry.New(),
		events:       events.NewPlane(),
		sessionStats: stats.NewSession(),
		latencies:    stats.NewLatencies(0),
		errRing:      diagnostics.NewRing(0),
		pending:      make(map[uint64]time.Time),
	}
}

// WithMetrics attaches a Prometheus collector; events are mirrored into
// it from then on. Optional — a Runtime with no collector simply skips
// the metrics updates.
func (rt *Runtime) WithMetrics(c *metrics.Collector) *Runtime {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.metrics = c
	return rt
}

// Events returns the runtime's event plane for direct subscription,
// e.g. by the NATS bridge.
func (rt *Runtime) Events() *events.Plane { return rt.events }

func (rt *Runtime) ensureBuilt() {
	if rt.started {
		return
	}
	supCfg := supervisor.Config{
		EndpointURL:    rt.cfg.EndpointURL,
		SecurityPolicy: rt.cfg.SecurityPolicy,
		SecurityMode:   ua.MessageSecurityModeNone,
		Identity:       rt.cfg.Identity,
		ApplicationURI: rt.cfg.ApplicationURI,
		DialTimeout:    rt.cfg.DialTimeout,
		Policy:         rt.cfg.ReconnectPolicy,
	}
	rt.sup = supervisor.New(supCfg, rt.events)
	rt.pool = pipeline.New(rt.cfg.MaxThreads, rt.reg, rt.sup, rt.events)
	rt.sub = subscription.New(rt.cfg.SubscriptionConfig, rt.reg, rt.sup, rt.pool, rt.events)
	rt.started = true
}

// Connect builds the supervisor/pipeline/subscription stack on first
// call (idempotent after that) and performs the initial connection.
func (rt *Runtime) Connect(ctx context.Context) error {
	rt.mu.Lock()
	rt.ensureBuilt()
	sup, pool := rt.sup, rt.pool
	rt.mu.Unlock()

	rt.startDispatcher()
	pool.Start()

	rt.sessionStats.RecordConnectAttempt()
	if err := sup.Start(ctx); err != nil {
		rt.sessionStats.RecordConnectFailure()
		rt.errRing.Push(err)
		return err
	}
	rt.sessionStats.RecordConnectSuccess(time.Now())
	return nil
}

// Disconnect tears down the subscription engine, pipeline, and
// supervisor, in that order (innermost consumer first).
func (rt *Runtime) Disconnect() {
	rt.mu.Lock()
	sup, pool, sub := rt.sup, rt.pool, rt.sub
	rt.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	if pool != nil {
		pool.Stop()
	}
	if sup != nil {
		sup.Stop()
	}
	rt.stopDispatcher()
}

// Reconnect forces an immediate (re)connect attempt, independent of the
// keepalive/backoff cycle — for an operator-triggered "reconnect now".
func (rt *Runtime) Reconnect(ctx context.Context) error {
	rt.mu.Lock()
	rt.ensureBuilt()
	sup := rt.sup
	rt.mu.Unlock()
	return sup.Connect(ctx)
}

// State reports the current connection state.
func (rt *Runtime) State() supervisor.ConnectionState {
	rt.mu.Lock()
	sup := rt.sup
	rt.mu.Unlock()
	if sup == nil {
		return supervisor.Disconnected
	}
	return sup.State()
}

// --- Configuration setters. Each except SetRequestTimeout is only
// honored before the first Connect call — once the supervisor/pipeline/subscription stack is
// built, changing these in place would require tearing it down, which
// Reconnect already covers explicitly.

func (rt *Runtime) SetReconnectPolicy(p supervisor.ReconnectPolicy) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.started {
		return errs.New(errs.InvalidPolicy, "cannot change reconnect policy after connect")
	}
	rt.cfg.ReconnectPolicy = p
	return nil
}

func (rt *Runtime) SetSubscriptionConfig(c subscription.Config) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.started {
		return errs.New(errs.InvalidPolicy, "cannot change subscription config after connect")
	}
	rt.cfg.SubscriptionConfig = c
	return nil
}

// SetMonitoredItemConfig adjusts the monitored-item parameters
// (publishing interval, lifetime/keepalive counts, priority) within the
// subscription config.
func (rt *Runtime) SetMonitoredItemConfig(publishingInterval time.Duration, lifetimeCount, maxKeepAliveCount uint32, priority uint8) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.started {
		return errs.New(errs.InvalidPolicy, "cannot change monitored-item config after connect")
	}
	rt.cfg.SubscriptionConfig.PublishingInterval = publishingInterval
	rt.cfg.SubscriptionConfig.LifetimeCount = lifetimeCount
	rt.cfg.SubscriptionConfig.MaxKeepAliveCount = maxKeepAliveCount
	rt.cfg.SubscriptionConfig.Priority = priority
	return nil
}

func (rt *Runtime) SetRequestTimeout(d time.Duration) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.cfg.RequestTimeout = d
}

func (rt *Runtime) SetMaxThreads(n int) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.started {
		return errs.New(errs.InvalidPolicy, "cannot change worker count after connect")
	}
	rt.cfg.MaxThreads = n
	return nil
}

func (rt *Runtime) requestTimeout() time.Duration {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.cfg.RequestTimeout > 0 {
		return rt.cfg.RequestTimeout
	}
	return 5 * time.Second
}

// --- Registry passthrough.

func (rt *Runtime) Register(def *registry.VariableDefinition) error {
	return rt.reg.Register(def)
}

func (rt *Runtime) RegisterMany(defs []*registry.VariableDefinition) error {
	return rt.reg.RegisterMany(defs)
}

func (rt *Runtime) Unregister(tag string) error {
	return rt.reg.Unregister(tag)
}

func (rt *Runtime) Clear() {
	rt.reg.Clear()
}

func (rt *Runtime) Get(tag string) (*registry.Handle, error) {
	return rt.reg.Get(tag)
}

func (rt *Runtime) ListTags() []string {
	return rt.reg.ListTags()
}
