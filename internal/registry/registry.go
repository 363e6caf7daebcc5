// Package registry stores per-tag VariableHandles: the source of truth
// for tag identity (tag ↔ node id), latest value, and subscription
// linkage. It supports many concurrent readers and rare writers via a
// sync.RWMutex, with O(1) lookup on the subscription ingest hot path.
package registry

import (
	"sync"
	"time"

	"github.com/scadaworks/opcua-runtime/internal/errs"
	"github.com/scadaworks/opcua-runtime/internal/nodeid"
)

// Registry is the exclusive owner of Handle storage.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Register parses def's address, refuses a duplicate tag, rejects a
// null parsed node id, and initializes the handle's latest value to
// {Bad, CommFail} until the first update arrives.
func (r *Registry) Register(def *VariableDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	id, err := nodeid.Parse(def.Address)
	if err != nil {
		return err
	}
	if id == nil {
		return errs.New(errs.InvalidAddress, "parsed node id is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[def.Tag]; exists {
		return errs.New(errs.DuplicateTag, def.Tag)
	}

	h := &Handle{Def: def, NodeID: id}
	h.latest = Latest{Quality: QualityCommFail, Timestamp: time.Time{}}
	// CommFail implies Bad severity too; record both via the quality
	// value alone (QualityCommFail already signals untrustworthy).
	r.handles[def.Tag] = h
	return nil
}

// RegisterMany registers every definition, stopping at (and returning)
// the first error. Definitions registered before the failing one remain
// registered — callers that need all-or-nothing semantics should
// Unregister the successfully-registered subset on error.
func (r *Registry) RegisterMany(defs []*VariableDefinition) error {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes tag's handle. It does not reach into the
// subscription engine, and runtime.Runtime.Unregister calls it
// directly, so a subscribed tag's server-side monitored item is not
// deleted; its later notifications find no handle and are ignored.
func (r *Registry) Unregister(tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[tag]; !ok {
		return errs.New(errs.UnknownTag, tag)
	}
	delete(r.handles, tag)
	return nil
}

// Clear removes every handle.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = make(map[string]*Handle)
}

// Get returns tag's handle, or errs.UnknownTag.
func (r *Registry) Get(tag string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[tag]
	if !ok {
		return nil, errs.New(errs.UnknownTag, tag)
	}
	return h, nil
}

// Iterate returns a snapshot of all registered tag→handle pairs,
// suitable for batch operations (poll-mode reads, shutdown teardown).
func (r *Registry) Iterate() map[string]*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Handle, len(r.handles))
	for k, v := range r.handles {
		out[k] = v
	}
	return out
}

// ListTags returns every registered tag name.
func (r *Registry) ListTags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handles))
	for k := range r.handles {
		out = append(out, k)
	}
	return out
}

// Len reports the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
