package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadaworks/opcua-runtime/internal/errs"
	"github.com/scadaworks/opcua-runtime/internal/events"
	"github.com/scadaworks/opcua-runtime/internal/registry"
	"github.com/scadaworks/opcua-runtime/internal/supervisor"
)

func newTestPool(t *testing.T, workers int) (*Pool, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	plane := events.NewPlane()
	sup := supervisor.New(supervisor.Config{EndpointURL: "opc.tcp://unused:4840"}, plane)
	p := New(workers, reg, sup, plane)
	p.Start()
	t.Cleanup(p.Stop)
	return p, reg
}

func TestNextIDMonotonic(t *testing.T) {
	p, _ := newTestPool(t, 1)
	a := p.NextID()
	b := p.NextID()
	c := p.NextID()
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestReadWhenNotConnectedFailsFast(t *testing.T) {
	p, reg := newTestPool(t, 1)
	require.NoError(t, reg.Register(&registry.VariableDefinition{
		Tag: "T1", Address: "ns=2;s=T1",
		EngMin: 0, EngMax: 10, RawMin: 0, RawMax: 10, Scale: 1,
	}))

	res, err := p.SubmitWait(context.Background(), Request{ID: p.NextID(), Kind: KindRead, Tag: "T1"}, time.Second)
	require.NoError(t, err, "SubmitWait itself should not error; the failure is carried in Result.Err")
	assert.False(t, res.OK)
	require.Error(t, res.Err)
	assert.True(t, errs.Is(res.Err, errs.NotConnected))
}

func TestBatchReadPartialFailureReportsDiagnosticsPerTag(t *testing.T) {
	p, reg := newTestPool(t, 2)
	require.NoError(t, reg.Register(&registry.VariableDefinition{
		Tag: "A", Address: "ns=2;s=A", EngMin: 0, EngMax: 10, RawMin: 0, RawMax: 10, Scale: 1,
	}))
	require.NoError(t, reg.Register(&registry.VariableDefinition{
		Tag: "B", Address: "ns=2;s=B", EngMin: 0, EngMax: 10, RawMin: 0, RawMax: 10, Scale: 1,
	}))

	res, err := p.SubmitWait(context.Background(), Request{
		ID: p.NextID(), Kind: KindBatchRead, Tags: []string{"A", "B", "unknown-tag"},
	}, time.Second)
	require.NoError(t, err)

	assert.False(t, res.OK, "batch must fail overall if any element failed")
	assert.Len(t, res.Diagnostics, 3, "every tag failed because the supervisor is not connected")
	assert.Contains(t, res.Diagnostics, "unknown-tag")
}

func TestSubmitWaitTimesOutWithoutPanicking(t *testing.T) {
	reg := registry.New()
	plane := events.NewPlane()
	sup := supervisor.New(supervisor.Config{EndpointURL: "opc.tcp://unused:4840"}, plane)
	p := New(1, reg, sup, plane)
	// Deliberately never Start(): nothing drains the queue, so
	// SubmitWait must observe its own timeout rather than hang forever.
	_, err := p.SubmitWait(context.Background(), Request{ID: p.NextID(), Kind: KindRead, Tag: "T1"}, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Timeout))
}

func TestSubmitFailsBusyWhenQueueFull(t *testing.T) {
	reg := registry.New()
	plane := events.NewPlane()
	sup := supervisor.New(supervisor.Config{EndpointURL: "opc.tcp://unused:4840"}, plane)
	p := New(1, reg, sup, plane)
	// Deliberately never Start(): nothing drains p.queue (capacity
	// DefaultQueue), so enqueueing past it must return Busy.
	for i := 0; i < DefaultQueue; i++ {
		require.NoError(t, p.Submit(Request{ID: p.NextID(), Kind: KindRead, Tag: "X"}))
	}
	err := p.Submit(Request{ID: p.NextID(), Kind: KindRead, Tag: "X"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Busy))
}
