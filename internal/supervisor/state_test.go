package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegalTransitionSequence(t *testing.T) {
	var seq []string
	m := newMachine(func(ctx context.Context, prev, next ConnectionState) {
		seq = append(seq, prev.String()+"->"+next.String())
	})

	ctx := context.Background()
	require.NoError(t, m.Event(ctx, "connect"))
	require.NoError(t, m.Event(ctx, "connected"))
	require.NoError(t, m.Event(ctx, "lost"))
	require.NoError(t, m.Event(ctx, "retry"))
	require.NoError(t, m.Event(ctx, "connected"))
	require.NoError(t, m.Event(ctx, "disconnect"))

	assert.Equal(t, []string{
		"disconnected->connecting",
		"connecting->connected",
		"connected->reconnecting",
		"reconnecting->connecting",
		"connecting->connected",
		"connected->disconnected",
	}, seq)
}

func TestIllegalTransitionRejected(t *testing.T) {
	m := newMachine(nil)
	err := m.Event(context.Background(), "lost")
	assert.Error(t, err, "lost is only legal from connected")
}

func TestRetryFailedReturnsToReconnecting(t *testing.T) {
	var seq []string
	m := newMachine(func(ctx context.Context, prev, next ConnectionState) {
		seq = append(seq, prev.String()+"->"+next.String())
	})

	ctx := context.Background()
	require.NoError(t, m.Event(ctx, "connect"))
	require.NoError(t, m.Event(ctx, "connected"))
	require.NoError(t, m.Event(ctx, "lost"))
	require.NoError(t, m.Event(ctx, "retry"))
	require.NoError(t, m.Event(ctx, "retry_failed"))
	require.NoError(t, m.Event(ctx, "retry"))
	require.NoError(t, m.Event(ctx, "connected"))

	assert.Equal(t, []string{
		"disconnected->connecting",
		"connecting->connected",
		"connected->reconnecting",
		"reconnecting->connecting",
		"connecting->reconnecting",
		"reconnecting->connecting",
		"connecting->connected",
	}, seq)
}

func TestAnyStateCanFail(t *testing.T) {
	// Paths reaching Disconnected, Connecting, Connected, Reconnecting.
	for _, path := range [][]string{{}, {"connect"}, {"connect", "connected"}, {"connect", "connected", "lost"}} {
		m := newMachine(nil)
		for _, ev := range path {
			require.NoError(t, m.Event(context.Background(), ev))
		}
		require.NoError(t, m.Event(context.Background(), "fail"))
		assert.Equal(t, Error.String(), m.Current())
	}
}
