package subscription

import (
	"context"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/monitor"
	"github.com/gopcua/opcua/ua"

	"github.com/scadaworks/opcua-runtime/internal/codec"
	"github.com/scadaworks/opcua-runtime/internal/errs"
	"github.com/scadaworks/opcua-runtime/internal/events"
	"github.com/scadaworks/opcua-runtime/internal/registry"
)

// startMonitored creates one server-side subscription with one
// monitored item per registered variable, per spec.md §4.6. It never
// blocks the caller past the initial subscribe call — notification
// handling runs entirely on the returned channel's reader goroutine.
func (e *Engine) startMonitored(ctx context.Context) error {
	client := e.client()
	if client == nil {
		return errs.New(errs.NotConnected, "cannot subscribe: supervisor is not connected")
	}

	handles := e.reg.Iterate()
	if len(handles) == 0 {
		return nil
	}
	nodeIDs := make([]string, 0, len(handles))
	byID := make(map[string]string, len(handles)) // node id string -> tag
	for tag, h := range handles {
		s := h.NodeID.String()
		nodeIDs = append(nodeIDs, s)
		byID[s] = tag
	}

	nm, err := monitor.NewNodeMonitor(client)
	if err != nil {
		return errs.Wrap(errs.ServerStatusBad, "create node monitor", err)
	}

	ch := make(chan *monitor.DataChangeMessage, 1024)
	sub, err := nm.ChanSubscribe(ctx, &opcua.SubscriptionParameters{
		Interval:          e.cfg.PublishingInterval,
		LifetimeCount:     e.cfg.LifetimeCount,
		MaxKeepAliveCount: e.cfg.MaxKeepAliveCount,
		Priority:          e.cfg.Priority,
	}, ch, nodeIDs...)
	if err != nil {
		return errs.Wrap(errs.ServerStatusBad, "create subscription", err)
	}

	e.mu.Lock()
	e.nodeMon = nm
	e.monSub = sub
	for _, h := range handles {
		e.nextMI++
		h.SetSubscription(e.nextMI)
	}
	e.mu.Unlock()

	go e.readChangeNotifications(ctx, ch, byID)
	return nil
}

func (e *Engine) readChangeNotifications(ctx context.Context, ch chan *monitor.DataChangeMessage, byID map[string]string) {
	for {
		select {
		case <-ctx.Done():
			e.onSubscriptionLost(ctx)
			return
		case dcm, ok := <-ch:
			if !ok {
				e.onSubscriptionLost(ctx)
				return
			}
			e.handleNotification(dcm, byID)
		}
	}
}

// handleNotification implements spec.md §4.6's 4-step notification
// path: validate, deep-copy (dcm already owns its own Value — gopcua's
// monitor package allocates a fresh message per notification, so no
// extra copy is needed here), dispatch to the tag's executor lane,
// decode + update + emit inside that lane.
func (e *Engine) handleNotification(dcm *monitor.DataChangeMessage, byID map[string]string) {
	if dcm == nil || dcm.Error != nil {
		return
	}
	tag, ok := byID[dcm.NodeID.String()]
	if !ok {
		return
	}
	quality := registry.FromStatusCode(dcm.Status)
	if dcm.Status != ua.StatusOK {
		return
	}

	value := dcm.Value
	ts := dcm.SourceTimestamp
	e.lanes.dispatch(tag, func() {
		e.ingest(tag, value, ts, quality)
	})
}

func (e *Engine) ingest(tag string, variant *ua.Variant, ts time.Time, quality registry.Quality) {
	h, err := e.reg.Get(tag)
	if err != nil {
		return
	}
	native, err := codec.Decode(variant)
	if err != nil {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	updated, applied, level, changed := h.SetLatest(native, ts, quality)
	if applied {
		e.events.PublishValueChanged(events.ValueChange{Tag: tag, Value: updated.Value, Timestamp: updated.Timestamp, Quality: uint8(quality)})
	}
	if changed {
		f, _ := asFloatForAlarm(updated.Value)
		e.events.PublishAlarm(events.Alarm{Tag: tag, Level: uint8(level), Value: f, At: time.Now()})
	}
}

func asFloatForAlarm(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
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

// onSubscriptionLost implements spec.md §4.6's "Subscription loss":
// clear every handle's linkage, then — if still connected and the
// engine hasn't been stopped — rebuild after a debounce.
func (e *Engine) onSubscriptionLost(ctx context.Context) {
	e.mu.Lock()
	e.nodeMon = nil
	e.monSub = nil
	stillRunning := e.running
	e.mu.Unlock()

	for _, tag := range e.reg.ListTags() {
		if h, err := e.reg.Get(tag); err == nil {
			h.ClearSubscription()
		}
	}

	if !stillRunning || !e.sup.IsConnected() {
		return
	}

	select {
	case <-time.After(e.cfg.SubscriptionDebounce):
	case <-ctx.Done():
		return
	}

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return
	}
	_ = e.startMonitored(ctx)
}
