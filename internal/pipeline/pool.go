// Package pipeline implements the bounded worker pool that turns
// every external read/write into a PendingRequest and executes it
// against the live session, per spec.md §4.5.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/scadaworks/opcua-runtime/internal/codec"
	"github.com/scadaworks/opcua-runtime/internal/errs"
	"github.com/scadaworks/opcua-runtime/internal/events"
	"github.com/scadaworks/opcua-runtime/internal/registry"
	"github.com/scadaworks/opcua-runtime/internal/supervisor"
)

// DefaultWorkers and bounds, per spec.md §4.5.
const (
	DefaultWorkers = 4
	MinWorkers     = 1
	MaxWorkers     = 20
	DefaultQueue   = 256
)

type job struct {
	req  Request
	done chan Result // nil for fire-and-forget (completion published on the event plane only)
}

// Pool is the bounded worker pool. Workers share no state but the
// registry and the live client; ordering is per-worker only, never
// pool-wide (spec.md §4.5 "Ordering").
type Pool struct {
	workers int
	queue   chan job

	reg    *registry.Registry
	conn   *supervisor.Supervisor
	events *events.Plane

	nextID  uint64
	active  int32
	pending int32

	mu      sync.Mutex
	waiters map[uint64]chan Result

	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

// New constructs a Pool. workers is clamped to [MinWorkers, MaxWorkers];
// zero selects DefaultWorkers.
func New(workers int, reg *registry.Registry, conn *supervisor.Supervisor, plane *events.Plane) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers < MinWorkers {
		workers = MinWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	return &Pool{
		workers: workers,
		queue:   make(chan job, DefaultQueue),
		reg:     reg,
		conn:    conn,
		events:  plane,
		waiters: make(map[uint64]chan Result),
		quit:    make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop drains in-flight work and terminates all workers.
func (p *Pool) Stop() {
	p.quitOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// NextID returns a fresh, monotonically increasing request id.
func (p *Pool) NextID() uint64 { return atomic.AddUint64(&p.nextID, 1) }

// ActiveWorkers reports how many workers are currently executing a
// request; pkg/runtime exposes it as Runtime.ActiveWorkers.
func (p *Pool) ActiveWorkers() int { return int(atomic.LoadInt32(&p.active)) }

// PendingRequestCount reports how many requests are queued or in
// flight and have not yet completed.
func (p *Pool) PendingRequestCount() int { return int(atomic.LoadInt32(&p.pending)) }

// Submit enqueues req without blocking for completion. It fails with
// errs.Busy if the queue is full.
func (p *Pool) Submit(req Request) error {
	atomic.AddInt32(&p.pending, 1)
	select {
	case p.queue <- job{req: req}:
		return nil
	default:
		atomic.AddInt32(&p.pending, -1)
		return errs.New(errs.Busy, "pipeline queue full")
	}
}

// SubmitWait enqueues req and blocks for its completion, up to
// timeout. A timeout removes the waiter slot and returns errs.Timeout
// without cancelling the in-flight work — a late completion finds no
// slot and is silently dropped (spec.md §4.5 "Sync wait").
func (p *Pool) SubmitWait(ctx context.Context, req Request, timeout time.Duration) (Result, error) {
	done := make(chan Result, 1)

	p.mu.Lock()
	p.waiters[req.ID] = done
	p.mu.Unlock()

	atomic.AddInt32(&p.pending, 1)
	select {
	case p.queue <- job{req: req, done: done}:
	default:
		p.mu.Lock()
		delete(p.waiters, req.ID)
		p.mu.Unlock()
		atomic.AddInt32(&p.pending, -1)
		return Result{}, errs.New(errs.Busy, "pipeline queue full")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res, nil
	case <-timer.C:
		p.mu.Lock()
		delete(p.waiters, req.ID)
		p.mu.Unlock()
		return Result{}, errs.New(errs.Timeout, "sync request timed out")
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.waiters, req.ID)
		p.mu.Unlock()
		return Result{}, errs.Wrap(errs.Timeout, "context cancelled", ctx.Err())
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case j := <-p.queue:
			atomic.AddInt32(&p.active, 1)
			res := p.execute(j.req)
			atomic.AddInt32(&p.active, -1)
			atomic.AddInt32(&p.pending, -1)
			p.complete(j, res)
		}
	}
}

func (p *Pool) complete(j job, res Result) {
	p.mu.Lock()
	waiter, ok := p.waiters[j.req.ID]
	if ok {
		delete(p.waiters, j.req.ID)
	}
	p.mu.Unlock()

	if ok {
		waiter <- res
		return
	}
	if j.done != nil {
		j.done <- res
		return
	}

	p.events.PublishCompletion(events.Completion{
		ID: res.ID, Tag: res.Tag, OK: res.OK, Value: res.Value, Err: res.Err, At: time.Now(),
	})
}

func (p *Pool) execute(req Request) Result {
	if !p.conn.IsConnected() {
		notConnected := errs.New(errs.NotConnected, "supervisor is not connected")
		// Batch requests still report one diagnostics entry per tag.
		diags := make(map[string]error)
		switch req.Kind {
		case KindBatchRead:
			for _, tag := range req.Tags {
				diags[tag] = notConnected
			}
			return Result{ID: req.ID, Values: make(map[string]interface{}), Diagnostics: diags}
		case KindBatchWrite:
			for tag := range req.Values {
				diags[tag] = notConnected
			}
			return Result{ID: req.ID, Diagnostics: diags}
		}
		return Result{ID: req.ID, Tag: req.Tag, Err: notConnected}
	}

	switch req.Kind {
	case KindRead:
		return p.read(req)
	case KindWrite:
		return p.write(req)
	case KindBatchRead:
		return p.batchRead(req)
	case KindBatchWrite:
		return p.batchWrite(req)
	default:
		return Result{ID: req.ID, Err: errs.New(errs.Invariant, "unknown request kind")}
	}
}

func (p *Pool) read(req Request) Result {
	h, err := p.reg.Get(req.Tag)
	if err != nil {
		return Result{ID: req.ID, Tag: req.Tag, Err: err}
	}

	client := p.conn.Client()
	if client == nil {
		return Result{ID: req.ID, Tag: req.Tag, Err: errs.New(errs.NotConnected, "no live client")}
	}

	resp, err := client.Read(context.Background(), &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{{NodeID: h.NodeID, AttributeID: ua.AttributeIDValue}},
	})
	if err != nil {
		return Result{ID: req.ID, Tag: req.Tag, Err: errs.Wrap(errs.ServerStatusBad, "read failed", err)}
	}
	if len(resp.Results) == 0 {
		return Result{ID: req.ID, Tag: req.Tag, Err: errs.New(errs.ServerStatusBad, "empty read response")}
	}

	dv := resp.Results[0]
	q := registry.FromStatusCode(dv.Status)
	if dv.Status != ua.StatusOK || dv.Value == nil {
		h.SetLatest(nil, time.Now(), q)
		return Result{ID: req.ID, Tag: req.Tag, Err: errs.New(errs.ServerStatusBad, fmt.Sprintf("read status %s", dv.Status))}
	}

	value, err := codec.Decode(dv.Value)
	if err != nil {
		return Result{ID: req.ID, Tag: req.Tag, Err: err}
	}

	ts := dv.ServerTimestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	updated, applied, level, changed := h.SetLatest(value, ts, q)
	if applied {
		p.events.PublishValueChanged(events.ValueChange{Tag: req.Tag, Value: updated.Value, Timestamp: updated.Timestamp, Quality: uint8(q)})
	}
	if changed {
		p.publishAlarm(req.Tag, level, updated.Value)
	}

	return Result{ID: req.ID, Tag: req.Tag, OK: true, Value: value}
}

func (p *Pool) write(req Request) Result {
	h, err := p.reg.Get(req.Tag)
	if err != nil {
		return Result{ID: req.ID, Tag: req.Tag, Err: err}
	}
	if !h.Def.Writable {
		return Result{ID: req.ID, Tag: req.Tag, Err: errs.New(errs.NotWritable, req.Tag)}
	}

	client := p.conn.Client()
	if client == nil {
		return Result{ID: req.ID, Tag: req.Tag, Err: errs.New(errs.NotConnected, "no live client")}
	}

	variant, err := codec.Encode(req.Value, nil)
	if err != nil {
		return Result{ID: req.ID, Tag: req.Tag, Err: err}
	}

	resp, err := client.Write(context.Background(), &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      h.NodeID,
			AttributeID: ua.AttributeIDValue,
			Value:       &ua.DataValue{EncodingMask: ua.DataValueValue, Value: variant},
		}},
	})
	if err != nil {
		return Result{ID: req.ID, Tag: req.Tag, Err: errs.Wrap(errs.ServerStatusBad, "write failed", err)}
	}
	if len(resp.Results) == 0 || resp.Results[0] != ua.StatusOK {
		return Result{ID: req.ID, Tag: req.Tag, Err: errs.New(errs.ServerStatusBad, "write rejected by server")}
	}

	return Result{ID: req.ID, Tag: req.Tag, OK: true, Value: req.Value}
}

// batchRead reads N tags; successful only if every tag succeeded.
func (p *Pool) batchRead(req Request) Result {
	values := make(map[string]interface{}, len(req.Tags))
	diags := make(map[string]error)
	ok := true

	for _, tag := range req.Tags {
		r := p.read(Request{ID: req.ID, Kind: KindRead, Tag: tag})
		if r.Err != nil {
			diags[tag] = r.Err
			ok = false
			continue
		}
		values[tag] = r.Value
	}

	return Result{ID: req.ID, OK: ok, Values: values, Diagnostics: diags}
}

// batchWrite writes N tags; a partial failure is reported as overall
// failure with per-tag diagnostics (spec.md §4.5 "Batch reads/writes").
func (p *Pool) batchWrite(req Request) Result {
	diags := make(map[string]error)
	ok := true

	for tag, value := range req.Values {
		r := p.write(Request{ID: req.ID, Kind: KindWrite, Tag: tag, Value: value})
		if r.Err != nil {
			diags[tag] = r.Err
			ok = false
		}
	}

	return Result{ID: req.ID, OK: ok, Diagnostics: diags}
}

func (p *Pool) publishAlarm(tag string, level registry.AlarmLevel, value interface{}) {
	f, ok := value.(float64)
	if !ok {
		if i, ok2 := toFloat(value); ok2 {
			f = i
		}
	}
	p.events.PublishAlarm(events.Alarm{Tag: tag, Level: uint8(level), Value: f, At: time.Now()})
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
