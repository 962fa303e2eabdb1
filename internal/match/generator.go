package match

import (
	"log/slog"
	"math"
	"sort"

	"github.com/geolink/internal/debug"
	"github.com/geolink/internal/geometry"
	"github.com/geolink/internal/model"
	"github.com/geolink/internal/strsim"
)

// periodOutcome is what steps 1-4 produce for one target period
type periodOutcome struct {
	survivors []Scored
	scored    bool // reached candidate scoring
	period    int
	err       error
}

// generate runs block lookup, region resolution, candidate scoring and the
// threshold filter for a single period of a target.
func (e *Engine) generate(localDebug bool, targetID string, tp model.TargetPeriod) periodOutcome {
	debug.DebugOutput(localDebug, "Period %d: key=%q name=%q", tp.Period, tp.BlockingKey, tp.TruncatedName)

	block, ok := e.blocks.Block(tp.BlockingKey)
	if !ok || tp.BlockingKey == "" {
		debug.DebugOutput(localDebug, "No block for key %q", tp.BlockingKey)
		return periodOutcome{err: ErrMissingBlock}
	}

	regions := e.resolveRegions(localDebug, targetID, block, tp)
	if len(regions) == 0 {
		debug.DebugOutput(localDebug, "No region resolved for ref %v", refString(tp.LowerLevelRef))
		return periodOutcome{err: ErrNoRegion}
	}

	regionIDs := make([]string, len(regions))
	for i, r := range regions {
		regionIDs[i] = r.ID
	}

	var survivors []Scored
	for _, c := range block.Candidates {
		sd := e.scorer.Distance(tp.TruncatedName, c.Name)
		if sd > e.params.StringThreshold {
			continue
		}
		survivors = append(survivors, Scored{
			Candidate:   c,
			StringDist:  sd,
			SpatialDist: spatialDistance(c, regions),
			Alignment:   align(tp, c),
			Period:      tp.Period,
			RegionIDs:   regionIDs,
		})
	}

	debug.DebugOutput(localDebug, "Period %d: %d/%d candidates within threshold %.3f",
		tp.Period, len(survivors), len(block.Candidates), e.params.StringThreshold)

	out := periodOutcome{survivors: survivors, scored: true}
	if len(survivors) == 0 {
		out.err = ErrNoCandidateAfterThreshold
	}
	return out
}

// resolveRegions picks the lower-level regions a target period refers to.
// An exact ID match wins; otherwise the closest names within the region
// name threshold are used. Without a ref the block's units valid for the
// period stand in.
func (e *Engine) resolveRegions(localDebug bool, targetID string, block *model.Block, tp model.TargetPeriod) []*model.Region {
	if tp.LowerLevelRef == nil || *tp.LowerLevelRef == "" {
		var units []*model.Region
		for _, u := range block.UnitsFor(tp.Period) {
			if e.usable(targetID, u) {
				units = append(units, u)
			}
		}
		debug.DebugOutput(localDebug, "No lower-level ref, using %d unit(s) valid for period %d", len(units), tp.Period)
		return units
	}
	ref := *tp.LowerLevelRef

	var valid []*model.Region
	var exact []*model.Region
	for _, r := range block.Regions {
		if !r.Validity.Covers(tp.Period) || !e.usable(targetID, r) {
			continue
		}
		valid = append(valid, r)
		if r.ID == ref {
			exact = append(exact, r)
		}
	}
	if len(exact) > 0 {
		debug.DebugOutput(localDebug, "Region %s resolved by id", ref)
		return exact
	}

	name := strsim.Fold(ref)
	best := math.Inf(1)
	dists := make([]float64, len(valid))
	for i, r := range valid {
		dists[i] = e.scorer.Distance(name, r.Name)
		if dists[i] < best {
			best = dists[i]
		}
	}
	if best > e.params.RegionNameThreshold {
		return nil
	}

	var byName []*model.Region
	for i, r := range valid {
		if dists[i] <= best+tieEpsilon {
			byName = append(byName, r)
		}
	}
	debug.DebugOutput(localDebug, "Region ref %q resolved by name to %d region(s), dist=%.4f", ref, len(byName), best)
	return byName
}

// usable validates a region's geometry, logging and skipping bad ones
func (e *Engine) usable(targetID string, r *model.Region) bool {
	if err := geometry.Validate(r); err != nil {
		slog.Warn("skipping region with invalid geometry",
			slog.String("target_id", targetID),
			slog.String("region_id", r.ID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// spatialDistance is the minimum distance from the candidate to any region
func spatialDistance(c *model.Candidate, regions []*model.Region) float64 {
	d := math.Inf(1)
	for _, r := range regions {
		if v := geometry.Distance(c.Coord, r); v < d {
			d = v
		}
	}
	return d
}

// align grades type and subtype agreement. Empty values are unknown and
// never agree.
func align(tp model.TargetPeriod, c *model.Candidate) Alignment {
	typeOK := tp.Type != "" && tp.Type == c.Type
	subOK := tp.Subtype != "" && tp.Subtype == c.Subtype
	switch {
	case typeOK && subOK:
		return AlignExact
	case typeOK || subOK:
		return AlignPartial
	default:
		return AlignNone
	}
}

// pool merges survivors across periods keeping each candidate's best
// scoring, ordered by candidate ID.
func pool(outcomes []periodOutcome) []Scored {
	best := make(map[string]Scored)
	for _, o := range outcomes {
		for _, s := range o.survivors {
			cur, ok := best[s.Candidate.ID]
			if !ok || better(s, cur) {
				best[s.Candidate.ID] = s
			}
		}
	}

	pooled := make([]Scored, 0, len(best))
	for _, s := range best {
		pooled = append(pooled, s)
	}
	sort.Slice(pooled, func(i, j int) bool {
		return pooled[i].Candidate.ID < pooled[j].Candidate.ID
	})
	return pooled
}

// better orders two scorings of the same candidate: lower string distance,
// then stronger alignment, then lower spatial distance.
func better(a, b Scored) bool {
	if !nearlyEqual(a.StringDist, b.StringDist) {
		return a.StringDist < b.StringDist
	}
	if a.Alignment != b.Alignment {
		return a.Alignment > b.Alignment
	}
	if !nearlyEqual(a.SpatialDist, b.SpatialDist) {
		return a.SpatialDist < b.SpatialDist
	}
	return false
}

func nearlyEqual(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= tieEpsilon
}

func refString(ref *string) string {
	if ref == nil {
		return "<none>"
	}
	return *ref
}
