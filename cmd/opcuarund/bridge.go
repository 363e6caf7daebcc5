package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/scadaworks/opcua-runtime/internal/browse"
	"github.com/scadaworks/opcua-runtime/internal/registry"
	"github.com/scadaworks/opcua-runtime/pkg/runtime"
)

// bridge republishes pkg/runtime.Runtime's event plane onto NATS
// subjects and serves read/write/browse request/reply subjects,
// adapted from the teacher's scanner.go NATS handlers and main.go's
// heartbeat/shutdown plumbing — now fronting the registry/pipeline/
// subscription core instead of a per-request ad hoc connection.
type bridge struct {
	nc       *nats.Conn
	rt       *runtime.Runtime
	moduleID string

	cancel context.CancelFunc
	wg     sync.WaitGroup

	heartbeatTicker *time.Ticker
	kv              jetstream.KeyValue
	startedAt       int64
}

// connectToNats connects with infinite retry, exactly as the teacher's
// connectToNats does.
func connectToNats(servers string) (*nats.Conn, error) {
	for {
		slog.Info("connecting to NATS", "servers", servers)
		nc, err := nats.Connect(servers,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(5*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					slog.Warn("NATS disconnected", "error", err)
				}
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				slog.Info("NATS reconnected")
			}),
		)
		if err != nil {
			slog.Warn("NATS connect failed, retrying", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}
		slog.Info("connected to NATS")
		return nc, nil
	}
}

func newBridge(nc *nats.Conn, rt *runtime.Runtime, moduleID string) *bridge {
	return &bridge{nc: nc, rt: rt, moduleID: moduleID, startedAt: time.Now().UnixMilli()}
}

// Start subscribes to the runtime's event plane, serves the
// request/reply subjects, and begins heartbeat publishing.
func (b *bridge) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(3)
	go b.forwardDataChanges(runCtx)
	go b.forwardStateChanges(runCtx)
	go b.forwardAlarms(runCtx)

	if err := b.serveReadWriteBrowse(); err != nil {
		return err
	}
	return b.startHeartbeat(ctx)
}

// Stop removes the heartbeat record and stops all forwarders.
func (b *bridge) Stop() {
	if b.heartbeatTicker != nil {
		b.heartbeatTicker.Stop()
	}
	if b.kv != nil {
		_ = b.kv.Delete(context.Background(), b.moduleID)
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

func (b *bridge) forwardDataChanges(ctx context.Context) {
	defer b.wg.Done()
	ch := b.rt.OnVariableValueChanged()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			msg := DataMessage{
				ModuleID:  b.moduleID,
				Tag:       ev.Tag,
				Value:     ev.Value,
				Timestamp: ev.Timestamp.UnixMilli(),
				Quality:   registry.Quality(ev.Quality).String(),
			}
			b.publish(fmt.Sprintf("%s.data.%s", b.moduleID, sanitizeForSubject(ev.Tag)), msg)
		}
	}
}

func (b *bridge) forwardStateChanges(ctx context.Context) {
	defer b.wg.Done()
	ch := b.rt.OnStateChanged()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			msg := StateMessage{ModuleID: b.moduleID, Prev: ev.Prev, Next: ev.Next, Timestamp: ev.At.UnixMilli()}
			b.publish(fmt.Sprintf("%s.state", b.moduleID), msg)
		}
	}
}

func (b *bridge) forwardAlarms(ctx context.Context) {
	defer b.wg.Done()
	ch := b.rt.OnAlarm()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			msg := AlarmMessage{
				ModuleID:  b.moduleID,
				Tag:       ev.Tag,
				Level:     registry.AlarmLevel(ev.Level).String(),
				Value:     ev.Value,
				Timestamp: ev.At.UnixMilli(),
			}
			b.publish(fmt.Sprintf("%s.alarm.%s", b.moduleID, sanitizeForSubject(ev.Tag)), msg)
		}
	}
}

func (b *bridge) publish(subject string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("bridge: failed to marshal outgoing message", "subject", subject, "error", err)
		return
	}
	if err := b.nc.Publish(subject, data); err != nil {
		slog.Warn("bridge: publish failed", "subject", subject, "error", err)
	}
}

func (b *bridge) serveReadWriteBrowse() error {
	readSubj := fmt.Sprintf("%s.read", b.moduleID)
	if _, err := b.nc.Subscribe(readSubj, b.handleRead); err != nil {
		return fmt.Errorf("subscribe %s: %w", readSubj, err)
	}

	writeSubj := fmt.Sprintf("%s.write", b.moduleID)
	if _, err := b.nc.Subscribe(writeSubj, b.handleWrite); err != nil {
		return fmt.Errorf("subscribe %s: %w", writeSubj, err)
	}

	browseSubj := fmt.Sprintf("%s.browse", b.moduleID)
	if _, err := b.nc.Subscribe(browseSubj, b.handleBrowse); err != nil {
		return fmt.Errorf("subscribe %s: %w", browseSubj, err)
	}
	return nil
}

func (b *bridge) handleRead(msg *nats.Msg) {
	var req ReadRequestMsg
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.respond(msg, ReadResponseMsg{OK: false, Error: err.Error()})
		return
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout(timeout))
	defer cancel()

	value, ok, err := b.rt.ReadSync(ctx, req.Tag, timeout)
	resp := ReadResponseMsg{Tag: req.Tag, Value: value, OK: ok}
	if err != nil {
		resp.Error = err.Error()
	}
	b.respond(msg, resp)
}

func (b *bridge) handleWrite(msg *nats.Msg) {
	var req WriteRequestMsg
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.respond(msg, WriteResponseMsg{OK: false, Error: err.Error()})
		return
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout(timeout))
	defer cancel()

	ok, err := b.rt.WriteSync(ctx, req.Tag, req.Value, timeout)
	resp := WriteResponseMsg{Tag: req.Tag, OK: ok}
	if err != nil {
		resp.Error = err.Error()
	}
	b.respond(msg, resp)
}

func (b *bridge) handleBrowse(msg *nats.Msg) {
	var req BrowseRequestMsg
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.respond(msg, BrowseResponseMsg{Error: err.Error()})
			return
		}
	}
	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = browse.DefaultMaxDepth
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	vars, err := b.rt.Browse(ctx, req.StartNodeID, maxDepth, nil)
	resp := BrowseResponseMsg{Variables: vars}
	if err != nil {
		resp.Error = err.Error()
	}
	b.respond(msg, resp)
}

func (b *bridge) respond(msg *nats.Msg, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("bridge: failed to marshal response", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn("bridge: respond failed", "error", err)
	}
}

func resolveTimeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return 5 * time.Second
}

// startHeartbeat mirrors the teacher's heartbeat-publishing block in
// main.go, now as a bridge method: a service_heartbeats KV bucket entry
// refreshed every 10 seconds and removed on Stop.
func (b *bridge) startHeartbeat(ctx context.Context) error {
	js, err := jetstream.New(b.nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  "service_heartbeats",
		History: 1,
		TTL:     60 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create heartbeat bucket: %w", err)
	}
	b.kv = kv

	publish := func() {
		hb := ServiceHeartbeat{
			ServiceType: "opcua",
			ModuleID:    b.moduleID,
			LastSeen:    time.Now().UnixMilli(),
			StartedAt:   b.startedAt,
			Metadata:    map[string]interface{}{},
		}
		data, err := json.Marshal(hb)
		if err != nil {
			slog.Warn("heartbeat marshal failed", "error", err)
			return
		}
		if _, err := kv.Put(context.Background(), b.moduleID, data); err != nil {
			slog.Warn("heartbeat publish failed", "error", err)
		}
	}

	publish()
	b.heartbeatTicker = time.NewTicker(10 * time.Second)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for range b.heartbeatTicker.C {
			publish()
		}
	}()
	return nil
}
