package ops

import (
	"github.com/cloudxtreme/wlfs/internal/pqueue"
	"github.com/cloudxtreme/wlfs/internal/vtree"
)

// Registry holds the priority-ordered set of installed providers and
// dispatches (path, kind) lookups against them. It is not safe for
// concurrent use; the engine serializes access under its own lock.
type Registry struct {
	queue *pqueue.Queue[Provider]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{queue: pqueue.New[Provider]()}
}

// Register installs p at priority. Install is not called here; the
// engine calls Provider.Install itself so a provider that declines
// installation (returns false) never enters the queue.
func (r *Registry) Register(priority Priority, p Provider) {
	r.queue.Insert(priority, p)
}

// Unregister removes the first provider whose Name matches, highest
// priority first.
func (r *Registry) Unregister(name string) (Provider, bool) {
	e, ok := r.queue.RemoveFirst(func(e pqueue.Entry[Provider]) bool {
		return e.Value.Name() == name
	})
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Match returns the highest-priority provider whose Matches(path, kind)
// reports true.
func (r *Registry) Match(path string, kind vtree.Kind) (Provider, bool) {
	e, ok := r.queue.FindFirst(func(e pqueue.Entry[Provider]) bool {
		return e.Value.Matches(path, kind)
	})
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Names returns the registered provider names, highest priority first.
func (r *Registry) Names() []string {
	entries := r.queue.Iterate()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Value.Name()
	}
	return names
}
