// Package persist parses the external collaborator's breakpoint-persistence
// document (spec §6): the core only consumes this shape via a constructor
// parameter, it never reads or writes the file itself. Adapted from the
// teacher's internal/core/config/config.go load pattern (tolerant JSON
// parsing with a logged fallback to an empty/default value on error),
// repointed from TOML-config to the JSON breakpoint schema.
package persist

import (
	"encoding/json"
	"io"
	"log/slog"
)

// InitialBreakpoint is one breakpoint entry read from the persisted
// document, ready to be handed to the engine's breakpoint registry.
type InitialBreakpoint struct {
	Path string
	Line int
	Name string
}

type document struct {
	Version  string     `json:"version"`
	Projects []project  `json:"projects"`
}

type project struct {
	Path        string           `json:"path"`
	Breakpoints []breakpointJSON `json:"breakpoints"`
}

type breakpointJSON struct {
	Name *string `json:"name"`
	Path string  `json:"path"`
	Line int     `json:"line"`
}

// Parse reads the persisted breakpoint document from r and flattens every
// project's breakpoints into a single list. Per spec §6, a missing or
// unparseable document is treated as empty, with a warning logged rather
// than an error returned — the collaborator that persists this file is
// external to the core and a bad file must not prevent a session from
// starting.
func Parse(r io.Reader, logger *slog.Logger) []InitialBreakpoint {
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		logger.Warn("persist: failed to read breakpoint document", "error", err)
		return nil
	}
	if len(raw) == 0 {
		logger.Warn("persist: breakpoint document is empty, treating as empty")
		return nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Warn("persist: failed to parse breakpoint document, treating as empty", "error", err)
		return nil
	}

	var out []InitialBreakpoint
	for _, proj := range doc.Projects {
		for _, bp := range proj.Breakpoints {
			path := bp.Path
			if path == "" {
				path = proj.Path
			}
			name := ""
			if bp.Name != nil {
				name = *bp.Name
			}
			out = append(out, InitialBreakpoint{Path: path, Line: bp.Line, Name: name})
		}
	}
	return out
}
