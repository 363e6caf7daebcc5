package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/scadaworks/opcua-runtime/internal/errs"
	"github.com/scadaworks/opcua-runtime/internal/stats"
)

// Statistics returns a snapshot of the session counters
// (opcuaclientmanager.h's SessionStatistics, SPEC_FULL.md §10.1).
func (rt *Runtime) Statistics() stats.Snapshot {
	return rt.sessionStats.Snapshot()
}

// RecentErrors returns up to n of the most recently observed errors
// across connect attempts and I/O, newest first.
func (rt *Runtime) RecentErrors(n int) []error {
	return rt.errRing.Recent(n)
}

// AverageResponseTime returns the mean of the last N pipeline
// completion latencies (SPEC_FULL.md §10.4).
func (rt *Runtime) AverageResponseTime() time.Duration {
	return rt.latencies.Average()
}

// ActiveWorkers reports how many pipeline workers are currently
// executing a request.
func (rt *Runtime) ActiveWorkers() int {
	rt.mu.Lock()
	pool := rt.pool
	rt.mu.Unlock()
	if pool == nil {
		return 0
	}
	return pool.ActiveWorkers()
}

// PendingRequestCount reports how many pipeline requests are queued or
// in flight.
func (rt *Runtime) PendingRequestCount() int {
	rt.mu.Lock()
	pool := rt.pool
	rt.mu.Unlock()
	if pool == nil {
		return 0
	}
	return pool.PendingRequestCount()
}

// DumpStatus logs a structured snapshot of connection state, registry
// size, and pipeline load — the Go equivalent of
// opcuaclientmanager.h's dumpStatusToLog, for an operator-triggered
// diagnostic capture.
func (rt *Runtime) DumpStatus() {
	snap := rt.Statistics()
	slog.Info("opcua runtime status",
		"state", rt.State().String(),
		"registered_tags", rt.reg.Len(),
		"pending_requests", rt.PendingRequestCount(),
		"active_workers", rt.ActiveWorkers(),
		"total_connections", snap.TotalConnections,
		"failed_connections", snap.FailedConnections,
		"reads_ok", snap.ReadsOK,
		"reads_failed", snap.ReadsFailed,
		"writes_ok", snap.WritesOK,
		"writes_failed", snap.WritesFailed,
		"reconnect_attempts", snap.ReconnectAttempts,
		"average_response_time", rt.AverageResponseTime().String(),
	)
}

// TestConnection issues a one-off, independent read of the server's
// current-time attribute without touching the persistent supervisor
// session — an operator-triggered health check that does not disturb
// the keepalive cycle or any in-flight pipeline work
// (opcuaclientmanager.h's testConnection, SPEC_FULL.md §10.3).
func (rt *Runtime) TestConnection(ctx context.Context, timeout time.Duration) error {
	rt.mu.Lock()
	cfg := rt.cfg
	rt.mu.Unlock()

	if cfg.EndpointURL == "" {
		return errs.New(errs.InvalidAddress, "no endpoint configured")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoints, err := opcua.GetEndpoints(dialCtx, cfg.EndpointURL)
	if err != nil {
		return errs.Wrap(errs.EndpointUnreachable, "test connection: discover endpoints", err)
	}
	if len(endpoints) == 0 {
		return errs.New(errs.EndpointUnreachable, "test connection: server returned no endpoints")
	}

	opts := []opcua.Option{
		opcua.SecurityFromEndpoint(endpoints[0], ua.UserTokenTypeAnonymous),
		opcua.ApplicationURI(nonEmptyApplicationURI(cfg.ApplicationURI)),
	}
	if !cfg.Identity.Anonymous {
		opts = []opcua.Option{
			opcua.SecurityFromEndpoint(endpoints[0], ua.UserTokenTypeUserName),
			opcua.AuthUsername(cfg.Identity.Username, cfg.Identity.Password),
		}
	}

	client, err := opcua.NewClient(endpoints[0].EndpointURL, opts...)
	if err != nil {
		return errs.Wrap(errs.EndpointUnreachable, "test connection: build client", err)
	}
	if err := client.Connect(dialCtx); err != nil {
		return errs.Wrap(errs.EndpointUnreachable, "test connection: connect", err)
	}
	defer client.Close(context.Background())

	resp, err := client.Read(dialCtx, &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{{NodeID: ua.NewNumericNodeID(0, 2258), AttributeID: ua.AttributeIDValue}},
	})
	if err != nil {
		return errs.Wrap(errs.Timeout, "test connection: probe read", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].Status != ua.StatusOK {
		return errs.New(errs.ServerStatusBad, fmt.Sprintf("test connection: probe returned %v", resp.Results))
	}
	return nil
}

func nonEmptyApplicationURI(uri string) string {
	if uri == "" {
		return "urn:scadaworks:opcua-runtime"
	}
	return uri
}
