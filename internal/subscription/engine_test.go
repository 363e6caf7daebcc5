package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadaworks/opcua-runtime/internal/events"
	"github.com/scadaworks/opcua-runtime/internal/pipeline"
	"github.com/scadaworks/opcua-runtime/internal/registry"
	"github.com/scadaworks/opcua-runtime/internal/supervisor"
)

func newTestEngine() *Engine {
	plane := events.NewPlane()
	reg := registry.New()
	sup := supervisor.New(supervisor.Config{
		EndpointURL: "opc.tcp://127.0.0.1:4840",
		Identity:    supervisor.Identity{Anonymous: true},
		DialTimeout: 10 * time.Millisecond,
	}, plane)
	pool := pipeline.New(0, reg, sup, plane)
	return New(Config{Mode: ModePolling, PollingInterval: 10 * time.Millisecond}, reg, sup, pool, plane)
}

func TestEngineSurvivesStartStopStartCycle(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	assert.NotNil(t, e.lanes, "Start must build a fresh executor pool")
	e.Stop()
	assert.Nil(t, e.lanes, "Stop must tear down the executor pool")

	// A second Start/Stop cycle must not dispatch into exited executor
	// goroutines, and a repeated Stop must not double-close a channel.
	require.NoError(t, e.Start(ctx))
	assert.NotNil(t, e.lanes)
	e.Stop()
	e.Stop() // no-op, must not panic
}

func TestEngineStopWithoutStartIsNoOp(t *testing.T) {
	e := newTestEngine()
	e.Stop()
}
