package runtime

import (
	"context"

	"github.com/scadaworks/opcua-runtime/internal/browse"
	"github.com/scadaworks/opcua-runtime/internal/errs"
)

// Browse walks the connected server's address space from startNodeID
// (browse.ObjectsFolder if empty) and reports every Variable node found.
// It requires an active
// connection; it does not itself trigger a connect.
func (rt *Runtime) Browse(ctx context.Context, startNodeID string, maxDepth int, progress browse.ProgressFunc) ([]browse.VariableInfo, error) {
	rt.mu.Lock()
	sup := rt.sup
	rt.mu.Unlock()
	if sup == nil {
		return nil, errs.New(errs.NotConnected, "browse requires a live client")
	}
	client := sup.Client()
	if client == nil {
		return nil, errs.New(errs.NotConnected, "browse requires a live client")
	}
	return browse.Walk(ctx, client, startNodeID, maxDepth, progress)
}
