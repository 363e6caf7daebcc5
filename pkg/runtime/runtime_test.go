package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadaworks/opcua-runtime/internal/errs"
	"github.com/scadaworks/opcua-runtime/internal/registry"
	"github.com/scadaworks/opcua-runtime/internal/supervisor"
)

func newTestRuntime() *Runtime {
	return New(Config{
		EndpointURL: "opc.tcp://127.0.0.1:4840",
		Identity:    supervisor.Identity{Anonymous: true},
		DialTimeout: 50 * time.Millisecond,
	})
}

func TestStateIsDisconnectedBeforeConnect(t *testing.T) {
	rt := newTestRuntime()
	assert.Equal(t, supervisor.Disconnected, rt.State())
}

func TestRegisterAndListTags(t *testing.T) {
	rt := newTestRuntime()
	def := &registry.VariableDefinition{
		Tag: "Pump1.Speed", Address: "ns=2;s=Pump1.Speed",
		EngMin: 0, EngMax: 100, RawMin: 0, RawMax: 4095, Scale: 1,
	}
	require.NoError(t, rt.Register(def))
	assert.Contains(t, rt.ListTags(), "Pump1.Speed")

	h, err := rt.Get("Pump1.Speed")
	require.NoError(t, err)
	assert.Equal(t, "Pump1.Speed", h.Def.Tag)
}

func TestSetReconnectPolicyRejectedAfterStart(t *testing.T) {
	rt := newTestRuntime()
	rt.ensureBuilt()
	err := rt.SetReconnectPolicy(supervisor.DefaultReconnectPolicy())
	assert.True(t, errs.Is(err, errs.InvalidPolicy))
}

func TestReadSyncFailsFastWhenNotConnected(t *testing.T) {
	rt := newTestRuntime()
	rt.ensureBuilt()
	rt.pool.Start()
	defer rt.pool.Stop()

	_, ok, err := rt.ReadSync(context.Background(), "NoSuchTag", 100*time.Millisecond)
	assert.False(t, ok)
	assert.Error(t, err)
}
