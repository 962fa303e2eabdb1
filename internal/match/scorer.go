package match

import (
	"sort"

	"github.com/geolink/internal/debug"
)

// Decision is the outcome of selection over the pooled survivors
type Decision struct {
	Selected Scored
	Tied     []Scored // populated when more than one candidate remains tied
	Err      error    // nil when matched
}

// MakeDecision applies primary selection on string distance, the alignment
// and spatial tie-breaks, and finally the spatial gate. survivors must be
// non-empty.
func MakeDecision(localDebug bool, survivors []Scored, maxSpatial float64) Decision {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	// Primary selection: string distance dominates everything else
	minString := survivors[0].StringDist
	for _, s := range survivors[1:] {
		if s.StringDist < minString {
			minString = s.StringDist
		}
	}
	primary := filter(survivors, func(s Scored) bool { return nearlyEqual(s.StringDist, minString) })
	debug.DebugOutput(localDebug, "Primary: %d candidate(s) at string distance %.4f", len(primary), minString)

	// Tie-break 1: categorical alignment
	bestAlign := AlignNone
	for _, s := range primary {
		if s.Alignment > bestAlign {
			bestAlign = s.Alignment
		}
	}
	aligned := filter(primary, func(s Scored) bool { return s.Alignment == bestAlign })
	if len(aligned) < len(primary) {
		debug.DebugOutput(localDebug, "Alignment %s kept %d of %d", bestAlign, len(aligned), len(primary))
	}

	// Tie-break 2: spatial distance
	minSpatial := aligned[0].SpatialDist
	for _, s := range aligned[1:] {
		if s.SpatialDist < minSpatial {
			minSpatial = s.SpatialDist
		}
	}
	closest := filter(aligned, func(s Scored) bool { return nearlyEqual(s.SpatialDist, minSpatial) })

	if len(closest) > 1 {
		sort.Slice(closest, func(i, j int) bool { return closest[i].Candidate.ID < closest[j].Candidate.ID })
		debug.DebugOutput(localDebug, "Ambiguous: %d candidates tied at string %.4f spatial %.1f", len(closest), minString, minSpatial)
		return Decision{Selected: closest[0], Tied: closest, Err: ErrAmbiguousTie}
	}

	selected := closest[0]
	if selected.SpatialDist > maxSpatial {
		debug.DebugOutput(localDebug, "Rejected: %s is %.1fm away (max %.1fm)", selected.Candidate.ID, selected.SpatialDist, maxSpatial)
		return Decision{Selected: selected, Err: ErrSpatialGateRejection}
	}

	debug.DebugOutput(localDebug, "Matched: %s string=%.4f spatial=%.1f", selected.Candidate.ID, selected.StringDist, selected.SpatialDist)
	return Decision{Selected: selected}
}

func filter(in []Scored, keep func(Scored) bool) []Scored {
	out := make([]Scored, 0, len(in))
	for _, s := range in {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
