package blocking

import (
	"log/slog"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"github.com/geolink/internal/debug"
	"github.com/geolink/internal/geometry"
	"github.com/geolink/internal/model"
)

// Stats summarizes a partition run. Items that fall inside no buffered unit
// are unreachable by any target and are only reported here, in aggregate.
type Stats struct {
	Units                int `json:"units"`
	InvalidUnits         int `json:"invalid_units"`
	Blocks               int `json:"blocks"`
	Candidates           int `json:"candidates"`
	Regions              int `json:"regions"`
	DroppedCandidates    int `json:"dropped_candidates"`
	DroppedRegions       int `json:"dropped_regions"`
	InvalidRegions       int `json:"invalid_regions"`
	MultiBlockCandidates int `json:"multi_block_candidates"`
	MultiBlockRegions    int `json:"multi_block_regions"`
}

// Set is the immutable output of Partition
type Set struct {
	Blocks map[string]*model.Block
	Stats  Stats
}

// Block returns the block for key
func (s *Set) Block(key string) (*model.Block, bool) {
	b, ok := s.Blocks[key]
	return b, ok
}

// Keys returns the block keys in sorted order
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.Blocks))
	for k := range s.Blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeyOf maps a top-level unit to the blocking key of its block
type KeyOf func(unit *model.Region) string

// ByBlockingKey is the default KeyOf
func ByBlockingKey(unit *model.Region) string {
	return unit.BlockingKey
}

// Partition assigns every candidate and lower-level region to the block of
// each top-level unit whose buffered boundary contains it. An item may land
// in several blocks when buffered units overlap.
func Partition(localDebug bool, candidates []*model.Candidate, regions []*model.Region, units []*model.Region, keyOf KeyOf, bufferDistance float64) *Set {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)
	defer debug.DebugTiming(localDebug, "partition")()

	if keyOf == nil {
		keyOf = ByBlockingKey
	}

	set := &Set{Blocks: make(map[string]*model.Block)}
	set.Stats.Units = len(units)
	set.Stats.Candidates = len(candidates)
	set.Stats.Regions = len(regions)

	var valid []*model.Region
	for _, u := range units {
		if err := geometry.Validate(u); err != nil {
			slog.Warn("skipping top-level unit", slog.String("unit", u.ID), slog.String("error", err.Error()))
			set.Stats.InvalidUnits++
			continue
		}
		valid = append(valid, u)
	}

	ix := geometry.BuildIndex(valid, bufferDistance)
	tree := buildTree(candidates)

	candidateHits := make([]int, len(candidates))
	regionHits := make([]int, len(regions))
	position := make(map[*model.Candidate]int, len(candidates))
	for i, c := range candidates {
		position[c] = i
	}

	regionValid := make([]bool, len(regions))
	for i, r := range regions {
		if err := geometry.Validate(r); err != nil {
			set.Stats.InvalidRegions++
			continue
		}
		regionValid[i] = true
	}

	members := make(map[string]*membership)
	isUnit := make(map[*model.Region]bool, len(valid))
	for _, u := range valid {
		isUnit[u] = true
	}

	for _, u := range valid {
		key := keyOf(u)
		padded, _ := ix.PaddedBound(u)

		block, ok := set.Blocks[key]
		if !ok {
			block = &model.Block{Key: key}
			set.Blocks[key] = block
			members[key] = &membership{
				candidates: make(map[*model.Candidate]bool),
				regions:    make(map[*model.Region]bool),
			}
		}
		block.Units = append(block.Units, u)
		seen := members[key]

		var idx []int
		if tree != nil {
			for _, p := range tree.InBound(nil, padded) {
				c := p.(*model.Candidate)
				if ix.Within(u, c.Coord) {
					idx = append(idx, position[c])
				}
			}
		}
		sort.Ints(idx)
		for _, i := range idx {
			if seen.candidates[candidates[i]] {
				continue
			}
			seen.candidates[candidates[i]] = true
			block.Candidates = append(block.Candidates, candidates[i])
			candidateHits[i]++
		}

		for i, r := range regions {
			if !regionValid[i] || isUnit[r] {
				continue
			}
			if !padded.Intersects(r.Geometry.Bound()) || !ix.RegionWithin(u, r) {
				continue
			}
			if seen.regions[r] {
				continue
			}
			seen.regions[r] = true
			block.Regions = append(block.Regions, r)
			regionHits[i]++
		}

		debug.DebugOutput(localDebug, "Unit %s (key %s): %d candidates, %d regions",
			u.ID, key, len(block.Candidates), len(block.Regions))
	}

	for _, n := range candidateHits {
		switch {
		case n == 0:
			set.Stats.DroppedCandidates++
		case n > 1:
			set.Stats.MultiBlockCandidates++
		}
	}
	for i, n := range regionHits {
		switch {
		case n == 0 && regionValid[i]:
			set.Stats.DroppedRegions++
		case n > 1:
			set.Stats.MultiBlockRegions++
		}
	}
	set.Stats.Blocks = len(set.Blocks)

	slog.Info("partition complete",
		slog.Int("blocks", set.Stats.Blocks),
		slog.Int("candidates", set.Stats.Candidates),
		slog.Int("dropped_candidates", set.Stats.DroppedCandidates),
		slog.Int("regions", set.Stats.Regions),
		slog.Int("dropped_regions", set.Stats.DroppedRegions),
		slog.Int("invalid_regions", set.Stats.InvalidRegions),
		slog.Int("invalid_units", set.Stats.InvalidUnits),
	)

	return set
}

// buildTree loads every candidate with a finite coordinate into a quadtree
// covering their joint bound.
func buildTree(candidates []*model.Candidate) *quadtree.Quadtree {
	var pts orb.MultiPoint
	for _, c := range candidates {
		if finitePoint(c.Coord) {
			pts = append(pts, c.Coord)
		}
	}
	if len(pts) == 0 {
		return nil
	}

	tree := quadtree.New(pts.Bound())
	for _, c := range candidates {
		if !finitePoint(c.Coord) {
			continue
		}
		if err := tree.Add(c); err != nil {
			slog.Warn("candidate outside quadtree bound", slog.String("candidate", c.ID), slog.String("error", err.Error()))
		}
	}
	return tree
}

func finitePoint(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type membership struct {
	candidates map[*model.Candidate]bool
	regions    map[*model.Region]bool
}
