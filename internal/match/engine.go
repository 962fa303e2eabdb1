package match

import (
	"sort"

	"github.com/geolink/internal/debug"
	"github.com/geolink/internal/model"
	"github.com/geolink/internal/strsim"
)

// Engine links targets to candidates inside their geographic blocks.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	blocks BlockSource
	scorer strsim.Scorer
	params Params
}

// NewEngine creates a matching engine over read-only blocks
func NewEngine(blocks BlockSource, scorer strsim.Scorer, params Params) *Engine {
	return &Engine{
		blocks: blocks,
		scorer: scorer,
		params: params,
	}
}

// Params returns the thresholds the engine runs with
func (e *Engine) Params() Params {
	return e.params
}

// WithParams returns a copy of the engine using different thresholds
func (e *Engine) WithParams(params Params) *Engine {
	return &Engine{blocks: e.blocks, scorer: e.scorer, params: params}
}

// Match resolves a target to exactly one terminal result
func (e *Engine) Match(localDebug bool, target model.Target) model.MatchResult {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	debug.DebugOutput(localDebug, "=== Matching target %s (%d period(s)) ===", target.ID, len(target.Periods))

	// Steps 1-4 per period
	debug.DebugOutput(localDebug, "\n=== Step 1-4: Block, Regions, Scoring, Threshold ===")
	outcomes := e.evaluate(localDebug, target)

	survivors := pool(outcomes)
	if len(survivors) == 0 {
		period, err := failure(outcomes)
		debug.DebugOutput(localDebug, "Unresolved: %v", err)
		return model.MatchResult{
			TargetID: target.ID,
			Status:   StatusFor(err),
			Period:   period,
			Reason:   err.Error(),
		}
	}
	debug.DebugOutput(localDebug, "Pooled %d surviving candidate(s)", len(survivors))

	// Steps 5-9 once over the pool
	debug.DebugOutput(localDebug, "\n=== Step 5-9: Alignment, Selection, Tie-break, Gate ===")
	d := MakeDecision(localDebug, survivors, e.params.MaxSpatialDistance)
	return buildResult(target.ID, d)
}

// Survivors returns the pooled candidates that pass the string threshold
// for a target, ordered by candidate ID.
func (e *Engine) Survivors(target model.Target) []Scored {
	return pool(e.evaluate(false, target))
}

func (e *Engine) evaluate(localDebug bool, target model.Target) []periodOutcome {
	periods := make([]model.TargetPeriod, len(target.Periods))
	copy(periods, target.Periods)
	sort.SliceStable(periods, func(i, j int) bool { return periods[i].Period < periods[j].Period })

	outcomes := make([]periodOutcome, 0, len(periods))
	for _, tp := range periods {
		o := e.generate(localDebug, target.ID, tp)
		o.period = tp.Period
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// failure picks the reason reported when no period produced survivors.
// Once any period reached scoring the threshold is to blame; otherwise the
// first period's failure is reported.
func failure(outcomes []periodOutcome) (int, error) {
	if len(outcomes) == 0 {
		return 0, ErrMissingBlock
	}
	for _, o := range outcomes {
		if o.scored {
			return o.period, ErrNoCandidateAfterThreshold
		}
	}
	return outcomes[0].period, outcomes[0].err
}

func buildResult(targetID string, d Decision) model.MatchResult {
	sel := d.Selected
	stringDist := sel.StringDist
	spatialDist := sel.SpatialDist

	result := model.MatchResult{
		TargetID:    targetID,
		StringDist:  &stringDist,
		SpatialDist: &spatialDist,
		Status:      StatusFor(d.Err),
		Period:      sel.Period,
		RegionIDs:   sel.RegionIDs,
	}

	switch {
	case d.Err == nil:
		id := sel.Candidate.ID
		result.CandidateID = &id
	case len(d.Tied) > 0:
		result.Reason = d.Err.Error()
		for _, s := range d.Tied {
			result.ReviewCandidateIDs = append(result.ReviewCandidateIDs, s.Candidate.ID)
		}
	default:
		result.Reason = d.Err.Error()
		result.ReviewCandidateIDs = []string{sel.Candidate.ID}
	}
	return result
}
