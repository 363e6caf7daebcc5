package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func zeroJitter() float64 { return 0 }

func TestDelayIsDeterministicGivenSameInputs(t *testing.T) {
	policy := ReconnectPolicy{InitialDelay: time.Second, MaxDelay: 60 * time.Second, Multiplier: 2, Exponential: true}

	d1 := Delay(3, policy, zeroJitter)
	d2 := Delay(3, policy, zeroJitter)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 8*time.Second, d1)
}

func TestDelayCapsAtMaxDelay(t *testing.T) {
	policy := ReconnectPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2, Exponential: true}
	d := Delay(10, policy, zeroJitter)
	assert.Equal(t, 10*time.Second, d)
}

func TestDelayJitterIsBoundedToTenPercent(t *testing.T) {
	policy := ReconnectPolicy{InitialDelay: 10 * time.Second, MaxDelay: time.Minute, Multiplier: 1, Exponential: false}

	dMax := Delay(0, policy, func() float64 { return 1 })
	dMin := Delay(0, policy, func() float64 { return -1 })

	assert.Equal(t, 11*time.Second, dMax)
	assert.Equal(t, 9*time.Second, dMin)
}

func TestDelayNonExponentialHoldsInitialDelay(t *testing.T) {
	policy := ReconnectPolicy{InitialDelay: 2 * time.Second, MaxDelay: time.Minute, Multiplier: 3, Exponential: false}
	d := Delay(5, policy, zeroJitter)
	assert.Equal(t, 2*time.Second, d)
}
