package subscription

import (
	"context"
	"time"

	"github.com/scadaworks/opcua-runtime/internal/pipeline"
)

// pollLoop implements spec.md §4.6's polling mode: a periodic batch
// read of every registered tag via the pipeline. The pipeline's own
// read path already updates handles and emits value-changed/alarm
// events, so the loop only needs to submit the batch.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context) {
	if !e.sup.IsConnected() {
		return
	}
	tags := e.reg.ListTags()
	if len(tags) == 0 {
		return
	}
	req := pipeline.Request{ID: e.pool.NextID(), Kind: pipeline.KindBatchRead, Tags: tags}
	_ = e.pool.Submit(req)
}
