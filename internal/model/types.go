package model

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Status is the terminal decision recorded for a target
type Status string

const (
	StatusMatched    Status = "matched"
	StatusAmbiguous  Status = "ambiguous"
	StatusRejected   Status = "rejected"
	StatusUnresolved Status = "unresolved"
)

// AllStatuses lists every terminal status in reporting order
var AllStatuses = []Status{StatusMatched, StatusAmbiguous, StatusRejected, StatusUnresolved}

// Valid reports whether s is one of the four terminal statuses
func (s Status) Valid() bool {
	switch s {
	case StatusMatched, StatusAmbiguous, StatusRejected, StatusUnresolved:
		return true
	}
	return false
}

// ParseStatus converts a stored status string back into a Status
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown match status %q", s)
	}
	return st, nil
}

// TargetPeriod holds the naming, typing and administrative context of a
// target during one period. Names and types can change between periods.
type TargetPeriod struct {
	Period        int
	TruncatedName string
	Type          string
	Subtype       string
	BlockingKey   string
	LowerLevelRef *string
}

// Target is a named point-location record to be matched
type Target struct {
	ID      string
	Periods []TargetPeriod
}

// BlockingKeys returns the distinct blocking keys used across all periods
func (t Target) BlockingKeys() []string {
	seen := make(map[string]bool, len(t.Periods))
	var keys []string
	for _, p := range t.Periods {
		if p.BlockingKey == "" || seen[p.BlockingKey] {
			continue
		}
		seen[p.BlockingKey] = true
		keys = append(keys, p.BlockingKey)
	}
	return keys
}

// Candidate is a geocoded point that may be the location of a target.
// Coordinates are in a projected planar CRS measured in metres.
type Candidate struct {
	ID       string
	Coord    orb.Point
	Name     string
	Source   string
	Accurate *bool
	Type     string
	Subtype  string
}

// Point implements orb.Pointer so candidates can be stored in a quadtree
func (c *Candidate) Point() orb.Point {
	return c.Coord
}

// Validity is the closed period range a region is valid for. A zero bound
// is open.
type Validity struct {
	From int
	To   int
}

// Covers reports whether period falls inside the validity range. Period 0
// means "unknown" and is always covered.
func (v Validity) Covers(period int) bool {
	if period == 0 {
		return true
	}
	if v.From != 0 && period < v.From {
		return false
	}
	if v.To != 0 && period > v.To {
		return false
	}
	return true
}

// Region is an administrative boundary polygon
type Region struct {
	ID          string
	Name        string
	Geometry    orb.Geometry
	Level       string
	BlockingKey string
	Validity    Validity
}

// Block is the materialized candidate and region subset for one blocking
// key. Several top-level units share a key when a boundary changed between
// validity periods. Blocks are read-only once built.
type Block struct {
	Key        string
	Units      []*Region
	Candidates []*Candidate
	Regions    []*Region
}

// UnitsFor returns the top-level units whose validity covers period
func (b *Block) UnitsFor(period int) []*Region {
	var units []*Region
	for _, u := range b.Units {
		if u.Validity.Covers(period) {
			units = append(units, u)
		}
	}
	return units
}

// MatchResult is the single outcome produced for a target.
// CandidateID is set only when Status is matched. Scores are nil when the
// engine never got as far as scoring a candidate.
type MatchResult struct {
	TargetID           string   `json:"target_id"`
	CandidateID        *string  `json:"candidate_id"`
	StringDist         *float64 `json:"string_dist"`
	SpatialDist        *float64 `json:"spatial_dist"`
	Status             Status   `json:"status"`
	Period             int      `json:"period,omitempty"`
	Reason             string   `json:"reason,omitempty"`
	RegionIDs          []string `json:"region_ids,omitempty"`
	ReviewCandidateIDs []string `json:"review_candidate_ids,omitempty"`
}
