package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetConnectionStateIsExclusive(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	states := []string{"Disconnected", "Connecting", "Connected", "Reconnecting", "Error"}
	c.SetConnectionState(states, "Connected")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.connectionState.WithLabelValues("Connected")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.connectionState.WithLabelValues("Disconnected")))
}

func TestReconnectCounterIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReconnectAttempt()
	c.RecordReconnectAttempt()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.reconnectTotal))
}

func TestAlarmTransitionsLabeled(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAlarmTransition("HiHi")
	assert.Equal(t, float64(1), testutil.ToFloat64(c.alarmsTotal.WithLabelValues("HiHi")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.alarmsTotal.WithLabelValues("Lo")))
}
