package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadaworks/opcua-runtime/internal/errs"
)

func TestParseStringIdentifier(t *testing.T) {
	id, err := Parse("ns=2;s=Pump1.Speed")
	require.NoError(t, err)
	assert.Equal(t, "ns=2;s=Pump1.Speed", id.String())
}

func TestParseNumericIdentifier(t *testing.T) {
	id, err := Parse("ns=3;i=1001")
	require.NoError(t, err)
	assert.Equal(t, "ns=3;i=1001", id.String())
}

func TestParseGUIDIdentifier(t *testing.T) {
	id, err := Parse("ns=1;g=72962B91-FA75-4AE6-8D28-B404DC7DAF63")
	require.NoError(t, err)
	assert.Contains(t, id.String(), "g=")
}

func TestParseByteStringIdentifier(t *testing.T) {
	id, err := Parse("ns=1;b=UGx1dG8=")
	require.NoError(t, err)
	assert.Contains(t, id.String(), "b=")
}

func TestParseBareShorthandDefaultsToNamespace2(t *testing.T) {
	id, err := Parse("Pump1.Speed")
	require.NoError(t, err)
	assert.Equal(t, "ns=2;s=Pump1.Speed", id.String())
}

func TestParseNamespaceWithNoIDPrefixIsStillAString(t *testing.T) {
	id, err := Parse("ns=5;Pump1.Speed")
	require.NoError(t, err)
	assert.Equal(t, "ns=5;s=Pump1.Speed", id.String())
}

func TestParseEmptyAddressFails(t *testing.T) {
	_, err := Parse("")
	assert.True(t, errs.Is(err, errs.InvalidAddress))
}

func TestParseMissingNamespaceSeparatorFails(t *testing.T) {
	_, err := Parse("ns=2")
	assert.True(t, errs.Is(err, errs.InvalidAddress))
}

func TestParseInvalidNumericIdentifierFails(t *testing.T) {
	_, err := Parse("ns=2;i=notanumber")
	assert.True(t, errs.Is(err, errs.InvalidAddress))
}

func TestFormatNilNodeID(t *testing.T) {
	assert.Equal(t, "", Format(nil))
}

func TestFormatRoundTrip(t *testing.T) {
	id, err := Parse("ns=4;s=Tag1")
	require.NoError(t, err)
	assert.Equal(t, "ns=4;s=Tag1", Format(id))
}
