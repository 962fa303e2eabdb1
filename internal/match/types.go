package match

import (
	"errors"

	"github.com/geolink/internal/model"
)

// Outcome reasons recorded on MatchResult.Reason. Every one of them is a
// normal terminal state for a single target and never halts a run.
var (
	ErrMissingBlock              = errors.New("missing_block")
	ErrNoRegion                  = errors.New("no_region")
	ErrNoCandidateAfterThreshold = errors.New("no_candidate_after_threshold")
	ErrAmbiguousTie              = errors.New("ambiguous_tie")
	ErrSpatialGateRejection      = errors.New("spatial_gate")
)

// StatusFor maps an outcome reason to the terminal status it produces
func StatusFor(err error) model.Status {
	switch {
	case err == nil:
		return model.StatusMatched
	case errors.Is(err, ErrAmbiguousTie):
		return model.StatusAmbiguous
	case errors.Is(err, ErrSpatialGateRejection):
		return model.StatusRejected
	default:
		return model.StatusUnresolved
	}
}

// Params holds the tunable thresholds of the engine
type Params struct {
	StringThreshold     float64 // max string distance a candidate may have, 0.15
	MaxSpatialDistance  float64 // metres from the resolved region, 2000
	RegionNameThreshold float64 // max name distance for region fallback, 0.20
}

// DefaultParams returns the recommended thresholds
func DefaultParams() Params {
	return Params{
		StringThreshold:     0.15,
		MaxSpatialDistance:  2000,
		RegionNameThreshold: 0.20,
	}
}

// tieEpsilon is the tolerance used when comparing distances for equality
const tieEpsilon = 1e-9

// Alignment grades how well a candidate's categorical type agrees with the
// target's. Higher is better.
type Alignment int

const (
	AlignNone Alignment = iota
	AlignPartial
	AlignExact
)

func (a Alignment) String() string {
	switch a {
	case AlignExact:
		return "exact"
	case AlignPartial:
		return "partial"
	default:
		return "none"
	}
}

// Scored is a candidate that survived the string threshold in one period
type Scored struct {
	Candidate   *model.Candidate
	StringDist  float64
	SpatialDist float64
	Alignment   Alignment
	Period      int
	RegionIDs   []string
}

// BlockSource looks up materialized blocks by key. Implementations must be
// safe for concurrent reads.
type BlockSource interface {
	Block(key string) (*model.Block, bool)
}

// Blocks is a map-backed BlockSource
type Blocks map[string]*model.Block

// Block implements BlockSource
func (b Blocks) Block(key string) (*model.Block, bool) {
	blk, ok := b[key]
	return blk, ok
}
