package runtime

import (
	"context"
	"time"

	"github.com/scadaworks/opcua-runtime/internal/events"
	"github.com/scadaworks/opcua-runtime/internal/registry"
)

// --- Event sink interfaces (spec.md §6). Each is a direct passthrough
// to the event plane; the Completion channel doubles for
// on_read_completed/on_write_completed/on_batch_*, and callers tell
// them apart by the request id returned from the async call. A
// Completion carries no per-tag maps, so a batch completion reports
// only its overall OK.

func (rt *Runtime) OnConnected() <-chan struct{}                  { return rt.events.OnConnected() }
func (rt *Runtime) OnDisconnected() <-chan struct{}                { return rt.events.OnDisconnected() }
func (rt *Runtime) OnConnectionLost() <-chan struct{}              { return rt.events.OnConnectionLost() }
func (rt *Runtime) OnReconnecting() <-chan events.ReconnectAttempt { return rt.events.OnReconnecting() }
func (rt *Runtime) OnStateChanged() <-chan events.StateTransition  { return rt.events.OnStateChanged() }
func (rt *Runtime) OnKeepalive() <-chan struct{}                   { return rt.events.OnKeepalive() }
func (rt *Runtime) OnCompletion() <-chan events.Completion         { return rt.events.OnCompletion() }
func (rt *Runtime) OnVariableValueChanged() <-chan events.ValueChange {
	return rt.events.OnVariableValueChanged()
}

// OnAlarm carries both on_alarm_triggered and on_alarm_cleared: a
// cleared alarm is an Alarm event with Level == registry.AlarmNone.
func (rt *Runtime) OnAlarm() <-chan events.Alarm { return rt.events.OnAlarm() }

// startDispatcher launches the background goroutines that keep
// session statistics, the error ring, and (if attached) Prometheus
// metrics in sync with the event plane — every component below the
// facade stays unaware that any of this bookkeeping exists.
func (rt *Runtime) startDispatcher() {
	ctx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.dispatchCancel = cancel
	rt.mu.Unlock()

	rt.dispatchWG.Add(4)
	go rt.dispatchCompletions(ctx)
	go rt.dispatchReconnects(ctx)
	go rt.dispatchStateChanges(ctx)
	go rt.dispatchAlarms(ctx)
}

func (rt *Runtime) stopDispatcher() {
	rt.mu.Lock()
	cancel := rt.dispatchCancel
	rt.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	rt.dispatchWG.Wait()
}

func (rt *Runtime) dispatchCompletions(ctx context.Context) {
	defer rt.dispatchWG.Done()
	ch := rt.events.OnCompletion()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			rt.pendingMu.Lock()
			start, found := rt.pending[ev.ID]
			if found {
				delete(rt.pending, ev.ID)
			}
			rt.pendingMu.Unlock()

			if found {
				d := time.Since(start)
				rt.latencies.Record(d)
				if rt.metrics != nil {
					rt.metrics.ObserveRequestLatencySeconds(d.Seconds())
				}
			}
			if ev.Err != nil {
				rt.errRing.Push(ev.Err)
			}
		}
	}
}

func (rt *Runtime) dispatchReconnects(ctx context.Context) {
	defer rt.dispatchWG.Done()
	ch := rt.events.OnReconnecting()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			rt.sessionStats.RecordReconnectAttempt()
			if rt.metrics != nil {
				rt.metrics.RecordReconnectAttempt()
			}
		}
	}
}

func (rt *Runtime) dispatchStateChanges(ctx context.Context) {
	defer rt.dispatchWG.Done()
	ch := rt.events.OnStateChanged()
	states := []string{"disconnected", "connecting", "connected", "reconnecting", "error"}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if rt.metrics != nil {
				rt.metrics.SetConnectionState(states, ev.Next)
			}
		}
	}
}

func (rt *Runtime) dispatchAlarms(ctx context.Context) {
	defer rt.dispatchWG.Done()
	ch := rt.events.OnAlarm()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if rt.metrics != nil {
				rt.metrics.RecordAlarmTransition(registry.AlarmLevel(ev.Level).String())
			}
		}
	}
}
