package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadaworks/opcua-runtime/internal/subscription"
)

const sample = `
connection:
  endpoint_url: "opc.tcp://plc.local:4840"
  anonymous: true
  dial_timeout: 5s

reconnect:
  initial_delay: 2s
  max_retries: 10

subscription:
  mode: polling
  polling_interval: 1s

variables:
  - tag: Pump1.Speed
    address: "ns=2;s=Pump1.Speed"
    type_hint: AI
    eng_min: 0
    eng_max: 100
    raw_min: 0
    raw_max: 4095
    scale: 1
    hihi: 95
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesConnectionAndVariables(t *testing.T) {
	path := writeTempConfig(t, sample)
	f, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "opc.tcp://plc.local:4840", f.Connection.EndpointURL)
	assert.True(t, f.Connection.Anonymous)
	require.Len(t, f.Variables, 1)
	assert.Equal(t, "Pump1.Speed", f.Variables[0].Tag)
}

func TestSubscriptionConfigOverridesDefaultsOnlyWhenSet(t *testing.T) {
	path := writeTempConfig(t, sample)
	f, err := Load(path)
	require.NoError(t, err)

	cfg := f.SubscriptionConfig()
	assert.Equal(t, subscription.ModePolling, cfg.Mode)
	assert.Equal(t, subscription.DefaultConfig().PublishingInterval, cfg.PublishingInterval, "unset field keeps the default")
}

func TestReconnectPolicyOverridesOnlyNonZeroFields(t *testing.T) {
	path := writeTempConfig(t, sample)
	f, err := Load(path)
	require.NoError(t, err)

	pol := f.ReconnectPolicy()
	assert.Equal(t, 10, pol.MaxRetries)
	assert.Greater(t, pol.MaxDelay.Seconds(), 0.0, "unset max_delay keeps the default")
}

func TestVariableDefinitionsRejectsInvalidDefinition(t *testing.T) {
	bad := sample + "\n  - tag: Broken\n    address: \"ns=2;s=Broken\"\n    eng_min: 10\n    eng_max: 5\n"
	path := writeTempConfig(t, bad)
	f, err := Load(path)
	require.NoError(t, err)

	_, err = f.VariableDefinitions()
	assert.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
