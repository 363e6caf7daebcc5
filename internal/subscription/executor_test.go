package subscription

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaneForIsStableForATag(t *testing.T) {
	a := laneFor("Pump1.Speed", 6)
	b := laneFor("Pump1.Speed", 6)
	assert.Equal(t, a, b)
}

func TestExecutorPoolPreservesPerTagOrder(t *testing.T) {
	p := newExecutorPool()
	defer p.stop()

	var mu sync.Mutex
	var seq []int
	var wg sync.WaitGroup
	wg.Add(10)

	for i := 0; i < 10; i++ {
		i := i
		p.dispatch("same-tag", func() {
			mu.Lock()
			seq = append(seq, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	for i, v := range seq {
		assert.Equal(t, i, v, "jobs for the same tag must execute in submission order")
	}
}

func TestExecutorPoolParallelizesAcrossTags(t *testing.T) {
	p := newExecutorPool()
	defer p.stop()
	assert.GreaterOrEqual(t, len(p.lanes), 2, "pool must have at least 2 lanes per spec.md's max(2, cores-2)")
}
