package strsim

import (
	"fmt"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

const (
	// DefaultPrefixWeight is the Winkler boost strength used when none is configured
	DefaultPrefixWeight = 0.15

	// MaxPrefixWeight keeps maxPrefixLen*weight < 1, so only identical
	// strings reach distance 0
	MaxPrefixWeight = 0.2

	// maxPrefixLen is the longest common prefix that earns a boost
	maxPrefixLen = 4

	// boostThreshold is the Jaro similarity a pair must exceed before the
	// prefix boost applies. Dissimilar pairs are never promoted.
	boostThreshold = 0.7
)

// Metric names accepted by New
const (
	MetricJaroWinkler = "jaro_winkler"
	MetricLevenshtein = "levenshtein"
)

// Scorer computes a normalized distance in [0,1] between two short strings.
// 0 means identical.
type Scorer interface {
	Distance(a, b string) float64
}

// New returns the scorer registered under metric
func New(metric string, prefixWeight float64) (Scorer, error) {
	switch metric {
	case "", MetricJaroWinkler:
		return JaroWinkler{PrefixWeight: prefixWeight}, nil
	case MetricLevenshtein:
		return Levenshtein{}, nil
	default:
		return nil, fmt.Errorf("unknown string metric %q", metric)
	}
}

// JaroWinkler scores with a Jaro base and a tunable Winkler prefix boost
type JaroWinkler struct {
	PrefixWeight float64
}

// Distance implements Scorer
func (jw JaroWinkler) Distance(a, b string) float64 {
	return Score(a, b, jw.PrefixWeight)
}

// Score returns the Jaro-Winkler distance between a and b.
//
// Two empty strings are identical (0); one empty string is maximally distant
// (1). The arguments are ordered before scoring so Score(a, b) == Score(b, a).
// Both the Jaro base and the common prefix work on bytes, so callers compare
// folded (ASCII) names to get per-character semantics.
func Score(a, b string, prefixWeight float64) float64 {
	if a == b {
		return 0
	}
	if a == "" || b == "" {
		return 1
	}
	if b < a {
		a, b = b, a
	}

	sim := smetrics.Jaro(a, b)
	if sim > boostThreshold {
		l := commonPrefixLen(a, b, maxPrefixLen)
		sim += float64(l) * clampWeight(prefixWeight) * (1 - sim)
	}

	return clamp01(1 - sim)
}

// Levenshtein scores with edit distance normalized by the longer string
type Levenshtein struct{}

// Distance implements Scorer
func (Levenshtein) Distance(a, b string) float64 {
	if a == b {
		return 0
	}
	if a == "" || b == "" {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	d := levenshtein.ComputeDistance(a, b)
	return clamp01(float64(d) / float64(longest))
}

// commonPrefixLen counts shared leading bytes, matching smetrics.Jaro
func commonPrefixLen(a, b string, limit int) int {
	n := 0
	for n < len(a) && n < len(b) && n < limit && a[n] == b[n] {
		n++
	}
	return n
}

func clampWeight(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > MaxPrefixWeight {
		return MaxPrefixWeight
	}
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
