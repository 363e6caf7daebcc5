package diagnostics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := NewRing(3)
	r.Push(errors.New("e1"))
	r.Push(errors.New("e2"))
	r.Push(errors.New("e3"))
	r.Push(errors.New("e4"))

	assert.Equal(t, 3, r.Len())
	recent := r.Recent(0)
	assert.Len(t, recent, 3)
	assert.Equal(t, "e4", recent[0].Error(), "newest first")
	assert.Equal(t, "e2", recent[2].Error())
}

func TestRingRecentClampsToStoredCount(t *testing.T) {
	r := NewRing(10)
	r.Push(errors.New("only one"))
	assert.Len(t, r.Recent(5), 1)
}

func TestRingIgnoresNilPush(t *testing.T) {
	r := NewRing(2)
	r.Push(nil)
	assert.Equal(t, 0, r.Len())
}
