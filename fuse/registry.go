package fuse

import (
	"sync/atomic"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

type registryEntry struct {
	path    string // empty once the node has been removed
	lookups uint64
}

// Registry hands out kernel node ids for paths. Ids are assigned on first
// lookup and live until the kernel forgets every reference to them.
type Registry struct {
	lastID atomic.Uint64
	ids    *xsync.Map[string, uint64]
	nodes  *xsync.Map[uint64, registryEntry]
}

func NewRegistry() *Registry {
	r := &Registry{
		ids:   xsync.NewMap[string, uint64](),
		nodes: xsync.NewMap[uint64, registryEntry](),
	}
	r.lastID.Store(fuse.FUSE_ROOT_ID)
	r.ids.Store("/", fuse.FUSE_ROOT_ID)
	r.nodes.Store(fuse.FUSE_ROOT_ID, registryEntry{path: "/", lookups: 1})
	return r
}

// Path returns the path a node id currently names
func (r *Registry) Path(id uint64) (string, bool) {
	e, ok := r.nodes.Load(id)
	if !ok || e.path == "" {
		return "", false
	}
	return e.path, true
}

// Ref returns the id for path, allocating one if needed, and counts one
// kernel lookup against it
func (r *Registry) Ref(path string) uint64 {
	id, _ := r.ids.LoadOrCompute(path, func() (uint64, bool) {
		return r.lastID.Add(1), false
	})
	r.nodes.Compute(id, func(e registryEntry, _ bool) (registryEntry, xsync.ComputeOp) {
		e.path = path
		e.lookups++
		return e, xsync.UpdateOp
	})
	return id
}

// Forget drops n lookups from id and releases it when none remain.
// The root is never released.
func (r *Registry) Forget(id, n uint64) {
	if id == fuse.FUSE_ROOT_ID {
		return
	}
	r.nodes.Compute(id, func(e registryEntry, loaded bool) (registryEntry, xsync.ComputeOp) {
		if !loaded {
			return e, xsync.CancelOp
		}
		if e.lookups > n {
			e.lookups -= n
			return e, xsync.UpdateOp
		}
		if e.path != "" {
			r.unbind(e.path, id)
		}
		return e, xsync.DeleteOp
	})
}

// Remove detaches path from its id after the node was deleted. The id
// stays reserved until forgotten but no longer resolves.
func (r *Registry) Remove(path string) {
	id, ok := r.ids.LoadAndDelete(path)
	if !ok {
		return
	}
	r.nodes.Compute(id, func(e registryEntry, loaded bool) (registryEntry, xsync.ComputeOp) {
		if !loaded {
			return e, xsync.CancelOp
		}
		e.path = ""
		return e, xsync.UpdateOp
	})
}

func (r *Registry) unbind(path string, id uint64) {
	r.ids.Compute(path, func(cur uint64, loaded bool) (uint64, xsync.ComputeOp) {
		if loaded && cur == id {
			return cur, xsync.DeleteOp
		}
		return cur, xsync.CancelOp
	})
}

// Len returns the number of ids held
func (r *Registry) Len() int {
	return r.nodes.Size()
}
