// Package breakpoints implements the core-internal breakpoint registry of
// spec §3/§4.7: a mapping from internal id to breakpoint record plus a
// secondary index by source path. Adapted from the teacher's
// internal/plugin/registry.go (Register/Get/List over a mutex-guarded map).
package breakpoints

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/google/go-dap"
)

// Breakpoint is the core-internal representation described in spec §3. Two
// breakpoints are equal iff (Path, Line) match.
type Breakpoint struct {
	ID        string // internal id, assigned by the engine, stable for the session
	Path      string
	Line      int
	Name      string // optional label/condition name
	Condition string
	Enabled   bool

	AdapterID int  // adapter-assigned id; zero until resync confirms one
	HasAdapterID bool
	Verified  bool
}

func sameLocation(a, b *Breakpoint) bool {
	return a.Path == b.Path && a.Line == b.Line
}

// Registry owns the breakpoint set for a session. It is safe for concurrent
// use; engine state is otherwise single-owner, but the registry is also
// read by external accessors (e.g. the command interface's breakpoint
// listing), so it keeps its own lock rather than relying on caller
// discipline.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Breakpoint
	byPath  map[string][]string // path -> ids, insertion order preserved
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byID:   make(map[string]*Breakpoint),
		byPath: make(map[string][]string),
	}
}

// Add inserts bp, assigning it a fresh internal ID if it doesn't have one.
// Duplicates by (Path, Line) are rejected.
func (r *Registry) Add(bp Breakpoint) (*Breakpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if sameLocation(existing, &bp) {
			return nil, fmt.Errorf("breakpoints: duplicate breakpoint at %s:%d", bp.Path, bp.Line)
		}
	}

	if bp.ID == "" {
		bp.ID = uuid.NewString()
	}
	bp.Enabled = true
	stored := bp
	r.byID[stored.ID] = &stored
	r.byPath[stored.Path] = append(r.byPath[stored.Path], stored.ID)
	return &stored, nil
}

// Remove deletes the breakpoint with the given internal id, if present.
func (r *Registry) Remove(id string) (*Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)

	ids := r.byPath[bp.Path]
	for i, existing := range ids {
		if existing == id {
			r.byPath[bp.Path] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byPath[bp.Path]) == 0 {
		delete(r.byPath, bp.Path)
	}
	return bp, true
}

// Get looks up a breakpoint by internal id.
func (r *Registry) Get(id string) (*Breakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.byID[id]
	return bp, ok
}

// List returns every breakpoint currently registered, in no particular
// order.
func (r *Registry) List() []*Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Breakpoint, 0, len(r.byID))
	for _, bp := range r.byID {
		copyBP := *bp
		out = append(out, &copyBP)
	}
	return out
}

// ListBySource returns the breakpoints registered against path, in
// insertion order.
func (r *Registry) ListBySource(path string) []*Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byPath[path]
	out := make([]*Breakpoint, 0, len(ids))
	for _, id := range ids {
		if bp, ok := r.byID[id]; ok {
			copyBP := *bp
			out = append(out, &copyBP)
		}
	}
	return out
}

// Sources returns every distinct source path with at least one breakpoint.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byPath))
	for path := range r.byPath {
		out = append(out, path)
	}
	return out
}

// Resync adopts adapter-assigned ids and verified flags from a
// SetBreakpoints response, correlating returned descriptors positionally to
// the breakpoints that were requested for that source (per spec §4.5 step 4
// and §4.7). If the returned count differs from the requested count, every
// entry for that source is logged (by the caller — Resync returns the
// mismatch so the engine can log it) and left unverified.
func (r *Registry) Resync(path string, requested []*Breakpoint, adapterBreakpoints []dap.Breakpoint) (mismatched bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(requested) != len(adapterBreakpoints) {
		for _, bp := range requested {
			if stored, ok := r.byID[bp.ID]; ok {
				stored.Verified = false
				stored.HasAdapterID = false
			}
		}
		return true
	}

	for i, bp := range requested {
		stored, ok := r.byID[bp.ID]
		if !ok {
			continue
		}
		adapterBP := adapterBreakpoints[i]
		stored.Verified = adapterBP.Verified
		stored.AdapterID = adapterBP.Id
		stored.HasAdapterID = true
	}
	return false
}
