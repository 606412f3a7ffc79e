// Package langprofile supplies per-language launch defaults selected by the
// caller's language identifier (spec §6: "a language identifier (used only
// to select defaults where needed)"). Adapted from the teacher's
// internal/plugin/{interface,registry}.go FrameworkPlugin/Registry shape,
// trimmed from framework auto-detection and log/query analysis down to the
// one thing this core actually needs: launch defaults.
package langprofile

import "sync"

// Profile describes the defaults a language identifier selects.
type Profile struct {
	// Language is the identifier callers pass (e.g. "python", "go", "node").
	Language string

	// DefaultStopOnEntry is used when the caller doesn't specify stopOnEntry
	// explicitly in a Start() call.
	DefaultStopOnEntry bool

	// ClientIDSuffix is appended to the base client identifier sent in the
	// Initialize request, so adapter-side logs can distinguish sessions by
	// language without the caller having to compute it.
	ClientIDSuffix string
}

// Registry maps language identifiers to Profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates a Registry pre-populated with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range defaultProfiles {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Language] = p
}

// Lookup returns the profile for language, or the "generic" fallback
// profile if language is unregistered or empty.
func (r *Registry) Lookup(language string) Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[language]; ok {
		return p
	}
	return r.profiles["generic"]
}

var defaultProfiles = []Profile{
	{Language: "python", DefaultStopOnEntry: false, ClientIDSuffix: "python"},
	{Language: "go", DefaultStopOnEntry: false, ClientIDSuffix: "go"},
	{Language: "node", DefaultStopOnEntry: false, ClientIDSuffix: "node"},
	{Language: "generic", DefaultStopOnEntry: false, ClientIDSuffix: "generic"},
}
