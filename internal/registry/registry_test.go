package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDef(tag string) *VariableDefinition {
	return &VariableDefinition{
		Tag:      tag,
		Address:  "ns=2;s=" + tag,
		TypeHint: TypeAI,
		EngMin:   0, EngMax: 100,
		RawMin: 0, RawMax: 4095,
		Scale: 1, Offset: 0,
		AlarmLimits: AlarmLimits{LoLo: 0, Lo: 10, Hi: 90, HiHi: 100},
	}
}

func TestRegisterGetUnregisterRoundTrip(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(validDef("T1")))

	h, err := r.Get("T1")
	require.NoError(t, err)
	assert.Equal(t, QualityCommFail, h.Latest().Quality)

	require.NoError(t, r.Unregister("T1"))
	assert.Equal(t, []string{}, append([]string{}, r.ListTags()...))
}

func TestRegisterDuplicateTag(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(validDef("T1")))
	err := r.Register(validDef("T1"))
	require.Error(t, err)
}

func TestRegisterInvalidAddressRejected(t *testing.T) {
	r := New()
	def := validDef("T2")
	def.Address = ""
	err := r.Register(def)
	require.Error(t, err)
}

func TestRegisterInvariantViolations(t *testing.T) {
	r := New()

	badEng := validDef("T3")
	badEng.EngMin, badEng.EngMax = 10, 10
	require.Error(t, r.Register(badEng))

	badAlarm := validDef("T4")
	badAlarm.AlarmLimits = AlarmLimits{LoLo: 50, Lo: 10, Hi: 90, HiHi: 100}
	require.Error(t, r.Register(badAlarm))

	badDeadband := validDef("T5")
	badDeadband.Deadband = -1
	require.Error(t, r.Register(badDeadband))
}

func TestDeadbandSuppression(t *testing.T) {
	r := New()
	def := validDef("T6")
	def.Deadband = 0.5
	require.NoError(t, r.Register(def))

	h, err := r.Get("T6")
	require.NoError(t, err)

	now := time.Now()
	_, applied, _, _ := h.SetLatest(42.0, now, QualityGood)
	assert.True(t, applied)

	_, applied, _, _ = h.SetLatest(42.2, now, QualityGood)
	assert.False(t, applied, "change below deadband must not overwrite latest")

	_, applied, _, _ = h.SetLatest(42.7, now, QualityGood)
	assert.True(t, applied, "change at/above deadband must overwrite latest")
}

func TestUnconfiguredAlarmLimitsNeverTrigger(t *testing.T) {
	r := New()
	def := validDef("T8")
	def.AlarmLimits = AlarmLimits{} // zero value: valid per Validate, no band configured
	require.NoError(t, r.Register(def))
	h, _ := r.Get("T8")
	now := time.Now()

	_, _, level, changed := h.SetLatest(42.0, now, QualityGood)
	assert.Equal(t, AlarmNone, level, "a first positive reading must not spuriously classify as HiHi")
	assert.False(t, changed)

	_, _, level, changed = h.SetLatest(1e9, now, QualityGood)
	assert.Equal(t, AlarmNone, level, "no reading ever alarms without a configured band")
	assert.False(t, changed)
}

func TestAlarmEdges(t *testing.T) {
	r := New()
	def := validDef("T7")
	require.NoError(t, r.Register(def))
	h, _ := r.Get("T7")
	now := time.Now()

	_, _, level, changed := h.SetLatest(50.0, now, QualityGood)
	assert.Equal(t, AlarmNone, level)
	assert.False(t, changed)

	_, _, level, changed = h.SetLatest(95.0, now, QualityGood)
	assert.Equal(t, AlarmHi, level)
	assert.True(t, changed, "crossing hi must emit exactly one trigger")

	_, _, level, changed = h.SetLatest(95.1, now, QualityGood)
	assert.False(t, changed, "staying above hi must not re-trigger")
	_ = level

	_, _, level, changed = h.SetLatest(50.0, now, QualityGood)
	assert.Equal(t, AlarmNone, level)
	assert.True(t, changed, "returning within band must emit exactly one clear")
}
