// Package staleness decides which source units must be recompiled.
//
// The decision uses modification timestamps, matching the recorded build
// time in the artifact index. A unit is stale when the index has no record
// for it, its object file is gone, its source or any transitively included
// header is strictly newer than the recorded build time, or the recorded
// build mode differs from the active one. Equal timestamps count as fresh:
// no spurious rebuilds at the cost of trusting local filesystem mtimes.
// The guarantee is correctness under a monotonic local clock with the
// filesystem's mtime granularity; content fingerprints were considered and
// rejected as unnecessary for a single-machine build tool.
package staleness

import (
	"os"

	"git.home.luguber.info/inful/cbuild/internal/artifact"
	"git.home.luguber.info/inful/cbuild/internal/discovery"
)

// Reasons a unit is marked stale.
const (
	ReasonNoRecord      = "no-record"
	ReasonObjectMissing = "object-missing"
	ReasonSourceNewer   = "source-newer"
	ReasonHeaderNewer   = "header-newer"
	ReasonModeChanged   = "mode-changed"
)

// Decision is the per-unit outcome of analysis.
type Decision struct {
	Unit   discovery.SourceUnit
	Object string
	Stale  bool
	Reason string // empty when fresh
}

// Plan is the ordered build plan for one invocation. It is constructed
// fresh each build and never persisted.
type Plan struct {
	// Decisions holds one entry per discovered unit, in discovery order.
	Decisions []Decision
	// Mode is the active build mode the plan was computed for.
	Mode string
}

// Stale returns the decisions marked stale, in plan order.
func (p *Plan) Stale() []Decision {
	var out []Decision
	for _, d := range p.Decisions {
		if d.Stale {
			out = append(out, d)
		}
	}
	return out
}

// Objects returns every object path needed for linking, recompiled and
// reused alike, in plan order.
func (p *Plan) Objects() []string {
	out := make([]string, 0, len(p.Decisions))
	for _, d := range p.Decisions {
		out = append(out, d.Object)
	}
	return out
}

// Analyze computes the build plan for the given units against the artifact
// store's records.
func Analyze(units []discovery.SourceUnit, store *artifact.Store, mode string) *Plan {
	plan := &Plan{Mode: mode, Decisions: make([]Decision, 0, len(units))}
	for _, unit := range units {
		object := store.ObjectPath(unit.Rel)
		d := Decision{Unit: unit, Object: object}
		d.Stale, d.Reason = analyzeUnit(unit, object, store, mode)
		plan.Decisions = append(plan.Decisions, d)
	}
	return plan
}

func analyzeUnit(unit discovery.SourceUnit, object string, store *artifact.Store, mode string) (bool, string) {
	rec, ok := store.RecordFor(unit.Rel)
	if !ok {
		return true, ReasonNoRecord
	}
	if _, err := os.Stat(object); err != nil {
		return true, ReasonObjectMissing
	}
	if rec.Mode != mode {
		return true, ReasonModeChanged
	}
	if unit.ModTime.After(rec.BuiltAt) {
		return true, ReasonSourceNewer
	}
	for _, header := range unit.Headers {
		info, err := os.Stat(header)
		if err != nil {
			// A header that vanished since discovery cannot prove the
			// object current; rebuild and let the compiler report it.
			return true, ReasonHeaderNewer
		}
		if info.ModTime().After(rec.BuiltAt) {
			return true, ReasonHeaderNewer
		}
	}
	return false, ""
}
