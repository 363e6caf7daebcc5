package subscription

import (
	"hash/fnv"
	"log/slog"
	"runtime"
)

// ingestJob is the unit of work dispatched to a per-tag executor: a
// decoded-pending value change for one variable.
type ingestJob struct {
	tag   string
	apply func()
}

// executorPool is a small fixed pool of single-worker executors. A
// tag's hash always routes to the same executor, preserving per-tag
// order while parallelizing ingestion across tags (spec.md §4.6,
// point 3).
type executorPool struct {
	lanes []chan ingestJob
	quit  chan struct{}
}

func newExecutorPool() *executorPool {
	n := runtime.NumCPU() - 2
	if n < 2 {
		n = 2
	}
	p := &executorPool{
		lanes: make([]chan ingestJob, n),
		quit:  make(chan struct{}),
	}
	for i := range p.lanes {
		p.lanes[i] = make(chan ingestJob, 256)
		go p.run(p.lanes[i])
	}
	return p
}

func (p *executorPool) run(lane chan ingestJob) {
	for {
		select {
		case <-p.quit:
			return
		case j := <-lane:
			j.apply()
		}
	}
}

func (p *executorPool) dispatch(tag string, apply func()) {
	lane := p.lanes[laneFor(tag, len(p.lanes))]
	select {
	case lane <- ingestJob{tag: tag, apply: apply}:
	default:
		// Lane full: drop rather than block the notification reader,
		// matching the event plane's own non-blocking-producer rule —
		// but the drop itself is never silent (spec.md §5).
		slog.Warn("subscription: dropped ingest notification, executor lane full", "tag", tag)
	}
}

func (p *executorPool) stop() { close(p.quit) }

func laneFor(tag string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tag))
	return int(h.Sum32()) % n
}
