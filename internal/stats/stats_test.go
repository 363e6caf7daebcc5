package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionCountersAccumulate(t *testing.T) {
	s := NewSession()
	s.RecordConnectAttempt()
	s.RecordConnectAttempt()
	s.RecordConnectFailure()
	s.RecordRead(true)
	s.RecordRead(false)
	s.RecordWrite(true)

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.TotalConnections)
	assert.Equal(t, int64(1), snap.FailedConnections)
	assert.Equal(t, int64(1), snap.ReadsOK)
	assert.Equal(t, int64(1), snap.ReadsFailed)
	assert.Equal(t, int64(1), snap.WritesOK)
}

func TestSessionFirstConnectStaysFixed(t *testing.T) {
	s := NewSession()
	t1 := time.Now()
	t2 := t1.Add(time.Minute)

	s.RecordConnectSuccess(t1)
	s.RecordConnectSuccess(t2)

	snap := s.Snapshot()
	assert.True(t, snap.FirstConnect.Equal(t1))
	assert.True(t, snap.LastConnect.Equal(t2))
}

func TestLatenciesAverage(t *testing.T) {
	l := NewLatencies(2)
	l.Record(10 * time.Millisecond)
	l.Record(20 * time.Millisecond)
	assert.Equal(t, 15*time.Millisecond, l.Average())

	l.Record(30 * time.Millisecond) // evicts the 10ms sample
	assert.Equal(t, 25*time.Millisecond, l.Average())
}

func TestLatenciesAverageOfEmptyIsZero(t *testing.T) {
	l := NewLatencies(4)
	assert.Equal(t, time.Duration(0), l.Average())
}
