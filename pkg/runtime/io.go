package runtime

import (
	"context"
	"time"

	"github.com/scadaworks/opcua-runtime/internal/pipeline"
	"github.com/scadaworks/opcua-runtime/internal/subscription"
)

func (rt *Runtime) trackSubmit(id uint64) {
	rt.pendingMu.Lock()
	rt.pending[id] = time.Now()
	rt.pendingMu.Unlock()
}

// ReadAsync submits a read and returns its request id immediately.
// Completion arrives on Events().OnCompletion().
func (rt *Runtime) ReadAsync(tag string) (uint64, error) {
	rt.mu.Lock()
	pool := rt.pool
	rt.mu.Unlock()

	id := pool.NextID()
	req := pipeline.Request{ID: id, Kind: pipeline.KindRead, Tag: tag}
	rt.trackSubmit(id)
	if err := pool.Submit(req); err != nil {
		return 0, err
	}
	return id, nil
}

// ReadAllAsync submits a batch read of every registered tag.
func (rt *Runtime) ReadAllAsync() (uint64, error) {
	rt.mu.Lock()
	pool := rt.pool
	rt.mu.Unlock()

	id := pool.NextID()
	req := pipeline.Request{ID: id, Kind: pipeline.KindBatchRead, Tags: rt.reg.ListTags()}
	rt.trackSubmit(id)
	if err := pool.Submit(req); err != nil {
		return 0, err
	}
	return id, nil
}

// WriteAsync submits a write and returns its request id immediately.
func (rt *Runtime) WriteAsync(tag string, value interface{}) (uint64, error) {
	rt.mu.Lock()
	pool := rt.pool
	rt.mu.Unlock()

	id := pool.NextID()
	req := pipeline.Request{ID: id, Kind: pipeline.KindWrite, Tag: tag, Value: value}
	rt.trackSubmit(id)
	if err := pool.Submit(req); err != nil {
		return 0, err
	}
	return id, nil
}

// ReadSync reads tag and blocks for the result, up to timeout (or the
// configured default request timeout if timeout <= 0).
func (rt *Runtime) ReadSync(ctx context.Context, tag string, timeout time.Duration) (interface{}, bool, error) {
	rt.mu.Lock()
	pool := rt.pool
	rt.mu.Unlock()

	start := time.Now()
	res, err := pool.SubmitWait(ctx, pipeline.Request{ID: pool.NextID(), Kind: pipeline.KindRead, Tag: tag}, rt.resolveTimeout(timeout))
	if err != nil {
		rt.recordSyncCompletion(start, false, err)
		return nil, false, err
	}
	rt.sessionStats.RecordRead(res.OK)
	rt.recordSyncCompletion(start, res.OK, res.Err)
	return res.Value, res.OK, res.Err
}

// WriteSync writes tag and blocks for the result.
func (rt *Runtime) WriteSync(ctx context.Context, tag string, value interface{}, timeout time.Duration) (bool, error) {
	rt.mu.Lock()
	pool := rt.pool
	rt.mu.Unlock()

	start := time.Now()
	res, err := pool.SubmitWait(ctx, pipeline.Request{ID: pool.NextID(), Kind: pipeline.KindWrite, Tag: tag, Value: value}, rt.resolveTimeout(timeout))
	if err != nil {
		rt.recordSyncCompletion(start, false, err)
		return false, err
	}
	rt.sessionStats.RecordWrite(res.OK)
	rt.recordSyncCompletion(start, res.OK, res.Err)
	return res.OK, res.Err
}

// BatchRead reads every tag in tags and blocks for all of them,
// returning a per-tag value map and a per-tag diagnostics map for the
// tags that failed (spec.md §4.5 "failure = false and an explicit
// diagnostics map").
func (rt *Runtime) BatchRead(ctx context.Context, tags []string, timeout time.Duration) (map[string]interface{}, map[string]error, error) {
	rt.mu.Lock()
	pool := rt.pool
	rt.mu.Unlock()

	start := time.Now()
	res, err := pool.SubmitWait(ctx, pipeline.Request{ID: pool.NextID(), Kind: pipeline.KindBatchRead, Tags: tags}, rt.resolveTimeout(timeout))
	if err != nil {
		rt.recordSyncCompletion(start, false, err)
		return nil, nil, err
	}
	rt.recordSyncCompletion(start, res.OK, nil)
	return res.Values, res.Diagnostics, nil
}

// BatchWrite writes every tag/value pair and blocks for all of them,
// returning overall success and a per-tag diagnostics map.
func (rt *Runtime) BatchWrite(ctx context.Context, values map[string]interface{}, timeout time.Duration) (bool, map[string]error, error) {
	rt.mu.Lock()
	pool := rt.pool
	rt.mu.Unlock()

	start := time.Now()
	res, err := pool.SubmitWait(ctx, pipeline.Request{ID: pool.NextID(), Kind: pipeline.KindBatchWrite, Values: values}, rt.resolveTimeout(timeout))
	if err != nil {
		rt.recordSyncCompletion(start, false, err)
		return false, nil, err
	}
	rt.recordSyncCompletion(start, res.OK, nil)
	return res.OK, res.Diagnostics, nil
}

func (rt *Runtime) resolveTimeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return rt.requestTimeout()
}

// recordSyncCompletion updates the latency window and error ring for a
// synchronous I/O call. Fire-and-forget async completions are recorded
// by the completion dispatcher in events.go instead, since no caller is
// blocked waiting to record them itself.
func (rt *Runtime) recordSyncCompletion(start time.Time, ok bool, opErr error) {
	d := time.Since(start)
	rt.latencies.Record(d)
	if rt.metrics != nil {
		rt.metrics.ObserveRequestLatencySeconds(d.Seconds())
	}
	if opErr != nil {
		rt.errRing.Push(opErr)
	}
}

// --- Subscription control.

// StartSubscription (re)starts the subscription engine in the given
// mode, stopping whichever mode is currently active first.
func (rt *Runtime) StartSubscription(ctx context.Context, mode subscription.Mode) error {
	rt.mu.Lock()
	rt.ensureBuilt()
	sub := rt.sub
	rt.mu.Unlock()

	sub.Stop()
	if err := sub.SetMode(mode); err != nil {
		return err
	}
	return sub.Start(ctx)
}

// StopSubscription halts whichever ingestion mode is currently active.
func (rt *Runtime) StopSubscription() {
	rt.mu.Lock()
	sub := rt.sub
	rt.mu.Unlock()
	if sub != nil {
		sub.Stop()
	}
}

// SetPollingInterval changes the polling-mode tick interval. It fails
// with errs.InvalidPolicy while the subscription engine is running;
// otherwise it takes effect the next time
// StartSubscription(ctx, subscription.ModePolling) runs.
func (rt *Runtime) SetPollingInterval(d time.Duration) error {
	rt.mu.Lock()
	rt.ensureBuilt()
	sub := rt.sub
	rt.mu.Unlock()
	return sub.SetPollingInterval(d)
}
