package strsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xrash/smetrics"
)

var sampleNames = []string{
	"", "A", "X", "ALPHA", "BETA", "KAMUKUNJI", "KAMUKUNJ", "MUKUNJI",
	"MARTHA", "MARHTA", "DIXON", "DICKSONX", "ST MARYS", "ST MARYS GIRLS",
	"NYERI", "NYERI TOWN", "OLKALOU", "OL KALOU", "MOI", "MOI FORCES",
}

func TestScoreIdentity(t *testing.T) {
	for _, s := range sampleNames {
		assert.Equal(t, 0.0, Score(s, s, DefaultPrefixWeight), "Score(%q, %q)", s, s)
	}
}

func TestScoreEmptyStrings(t *testing.T) {
	assert.Equal(t, 0.0, Score("", "", DefaultPrefixWeight))
	assert.Equal(t, 1.0, Score("", "x", DefaultPrefixWeight))
	assert.Equal(t, 1.0, Score("x", "", DefaultPrefixWeight))
}

func TestScoreRangeAndSymmetry(t *testing.T) {
	weights := []float64{0, 0.1, DefaultPrefixWeight, MaxPrefixWeight, 3}
	for _, p := range weights {
		for _, a := range sampleNames {
			for _, b := range sampleNames {
				d := Score(a, b, p)
				assert.GreaterOrEqual(t, d, 0.0, "Score(%q, %q, %v)", a, b, p)
				assert.LessOrEqual(t, d, 1.0, "Score(%q, %q, %v)", a, b, p)
				assert.Equal(t, d, Score(b, a, p), "symmetry for %q / %q", a, b)
			}
		}
	}
}

func TestScorePrefixBoost(t *testing.T) {
	plain := Score("MARTHA", "MARHTA", 0)
	boosted := Score("MARTHA", "MARHTA", DefaultPrefixWeight)

	assert.Less(t, boosted, plain, "shared prefix should reduce the distance")
	assert.InDelta(t, 0.0556, plain, 0.001)
}

func TestScorePrefixWeightIsCapped(t *testing.T) {
	assert.Equal(t, Score("MARTHA", "MARHTA", MaxPrefixWeight), Score("MARTHA", "MARHTA", 10))
	assert.Equal(t, Score("MARTHA", "MARHTA", 0), Score("MARTHA", "MARHTA", -1))
}

func TestScoreOnlyIdenticalStringsReachZero(t *testing.T) {
	pairs := [][2]string{{"ALPHA", "ALPHAVILLE"}, {"ALPHA", "ALPHB"}, {"MOI", "MOI FORCES"}}
	for _, a := range sampleNames {
		for _, b := range sampleNames {
			if a != b {
				pairs = append(pairs, [2]string{a, b})
			}
		}
	}

	for _, p := range []float64{MaxPrefixWeight, 10} {
		for _, pair := range pairs {
			assert.Greater(t, Score(pair[0], pair[1], p), 0.0, "Score(%q, %q, %v)", pair[0], pair[1], p)
		}
	}
}

func TestScorePrefixCountsBytes(t *testing.T) {
	// "É" is two bytes, so the four-byte prefix cap is reached at "ÉCO".
	a, b := "ÉCOLA", "ÉCOLE"
	jaro := smetrics.Jaro(a, b)
	want := 1 - (jaro + 4*DefaultPrefixWeight*(1-jaro))

	assert.InDelta(t, want, Score(a, b, DefaultPrefixWeight), 1e-12)
	assert.InDelta(t, want, Score(b, a, DefaultPrefixWeight), 1e-12)
}

func TestScoreNoBoostForDissimilarStrings(t *testing.T) {
	// Jaro("ALPHA", "ALXYZQW") is below the boost threshold, so the shared
	// prefix must not move the score.
	assert.Equal(t, Score("ALPHA", "ALXYZQW", 0), Score("ALPHA", "ALXYZQW", MaxPrefixWeight))
}

func TestScoreScenarioNames(t *testing.T) {
	assert.Equal(t, 0.0, Score("ALPHA", "ALPHA", DefaultPrefixWeight))
	assert.Greater(t, Score("ALPHA", "BETA", DefaultPrefixWeight), 0.15)
}

func TestLevenshteinDistance(t *testing.T) {
	scorer := Levenshtein{}

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "NYERI", b: "NYERI", want: 0},
		{name: "both empty", a: "", b: "", want: 0},
		{name: "one empty", a: "", b: "NYERI", want: 1},
		{name: "classic example", a: "KITTEN", b: "SITTING", want: 3.0 / 7.0},
		{name: "completely different", a: "AB", b: "CD", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scorer.Distance(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, scorer.Distance(tt.b, tt.a), 1e-9)
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(MetricJaroWinkler, 0.2)
	require.NoError(t, err)
	assert.Equal(t, JaroWinkler{PrefixWeight: 0.2}, s)

	s, err = New("", 0.2)
	require.NoError(t, err)
	assert.IsType(t, JaroWinkler{}, s)

	s, err = New(MetricLevenshtein, 0.2)
	require.NoError(t, err)
	assert.IsType(t, Levenshtein{}, s)

	_, err = New("soundex", 0.2)
	assert.Error(t, err)
}

func TestFold(t *testing.T) {
	tests := map[string]string{
		"  st. mary's   girls ": "ST. MARY'S GIRLS",
		"Égérton\tUniversity":   "EGERTON UNIVERSITY",
		"":                      "",
		"ALREADY CLEAN":         "ALREADY CLEAN",
	}
	for in, want := range tests {
		assert.Equal(t, want, Fold(in), "Fold(%q)", in)
	}
}
