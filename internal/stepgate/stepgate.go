// Package stepgate decides which optional pipeline stages a job runs.
//
// A job's step list has three shapes. A missing list (null) expresses no
// preference and enables every stage. An explicit empty list disables every
// stage. A non-empty list enables exactly the named stages, except speech to
// text, which stays enabled whatever the list names.
package stepgate

import (
	"sort"
	"strings"
)

// Stage names recognized by the ingest pipeline.
const (
	STT        = "stt"
	Diarize    = "diarize"
	Voice      = "voice"
	EnrichCLI  = "enrich_cli"
	Embeddings = "embeddings"
	Context    = "context"
)

// Gate is an immutable view of a job's step list.
type Gate struct {
	present bool
	names   map[string]struct{}
}

// Parse builds a gate. present=false means the job carried no step list.
func Parse(raw []string, present bool) Gate {
	if !present {
		return Gate{}
	}
	names := make(map[string]struct{}, len(raw))
	for _, value := range raw {
		name := Normalize(value)
		if name == "" {
			continue
		}
		names[name] = struct{}{}
	}
	return Gate{present: true, names: names}
}

// Normalize trims, lowercases and maps '-' to '_'.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, "-", "_")
}

// IsNull reports whether the job expressed no preference.
func (g Gate) IsNull() bool {
	return !g.present
}

// Empty reports whether the job sent an explicit empty list.
func (g Gate) Empty() bool {
	return g.present && len(g.names) == 0
}

// Names returns the normalized step names in sorted order; nil when null.
func (g Gate) Names() []string {
	if !g.present {
		return nil
	}
	out := make([]string, 0, len(g.names))
	for name := range g.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports literal membership without the stt exception.
func (g Gate) Has(name string) bool {
	if !g.present {
		return false
	}
	_, ok := g.names[Normalize(name)]
	return ok
}

// Enabled reports whether the named stage may run.
func (g Gate) Enabled(name string) bool {
	if !g.present {
		return true
	}
	if len(g.names) == 0 {
		return false
	}
	name = Normalize(name)
	if name == STT {
		return true
	}
	_, ok := g.names[name]
	return ok
}
