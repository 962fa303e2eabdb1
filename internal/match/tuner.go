package match

import (
	"fmt"
	"time"

	"github.com/geolink/internal/model"
)

// DefaultTuningThresholds is the sweep used when none is supplied
var DefaultTuningThresholds = []float64{0.05, 0.08, 0.10, 0.12, 0.15, 0.18, 0.20, 0.25, 0.30}

// TuningResult holds the outcome of running the engine at one string
// threshold
type TuningResult struct {
	Threshold      float64              `json:"threshold"`
	Survivors      int                  `json:"survivors"`
	Counts         map[model.Status]int `json:"counts"`
	TruePositives  int                  `json:"true_positives"`
	FalsePositives int                  `json:"false_positives"`
	FalseNegatives int                  `json:"false_negatives"`
	Precision      float64              `json:"precision"`
	Recall         float64              `json:"recall"`
	F1Score        float64              `json:"f1_score"`
	ProcessingTime time.Duration        `json:"processing_time"`
}

// Tune runs every target at each string threshold. knownGood maps target
// IDs to their accepted candidate IDs and may be nil, in which case only
// counts are reported.
func (e *Engine) Tune(targets []model.Target, thresholds []float64, knownGood map[string]string) []TuningResult {
	if len(thresholds) == 0 {
		thresholds = DefaultTuningThresholds
	}

	results := make([]TuningResult, 0, len(thresholds))
	for _, threshold := range thresholds {
		params := e.params
		params.StringThreshold = threshold
		results = append(results, e.WithParams(params).tuneOne(targets, knownGood))
	}
	return results
}

func (e *Engine) tuneOne(targets []model.Target, knownGood map[string]string) TuningResult {
	start := time.Now()
	result := TuningResult{
		Threshold: e.params.StringThreshold,
		Counts:    make(map[model.Status]int, len(model.AllStatuses)),
	}

	for _, target := range targets {
		result.Survivors += len(e.Survivors(target))

		res := e.Match(false, target)
		result.Counts[res.Status]++

		want, labelled := knownGood[target.ID]
		if !labelled {
			continue
		}
		switch {
		case res.CandidateID != nil && *res.CandidateID == want:
			result.TruePositives++
		case res.CandidateID != nil:
			result.FalsePositives++
		default:
			result.FalseNegatives++
		}
	}

	if result.TruePositives+result.FalsePositives > 0 {
		result.Precision = float64(result.TruePositives) / float64(result.TruePositives+result.FalsePositives)
	}
	if result.TruePositives+result.FalseNegatives > 0 {
		result.Recall = float64(result.TruePositives) / float64(result.TruePositives+result.FalseNegatives)
	}
	if result.Precision+result.Recall > 0 {
		result.F1Score = 2 * result.Precision * result.Recall / (result.Precision + result.Recall)
	}
	result.ProcessingTime = time.Since(start)
	return result
}

// BestThreshold picks the result with the highest F1 score, preferring the
// stricter threshold on ties. It returns false when nothing was labelled.
func BestThreshold(results []TuningResult) (TuningResult, bool) {
	var best TuningResult
	found := false
	for _, r := range results {
		if r.TruePositives+r.FalsePositives+r.FalseNegatives == 0 {
			continue
		}
		if !found || r.F1Score > best.F1Score || (r.F1Score == best.F1Score && r.Threshold < best.Threshold) {
			best = r
			found = true
		}
	}
	return best, found
}

// String renders a one-line summary for CLI output
func (r TuningResult) String() string {
	return fmt.Sprintf("threshold=%.3f survivors=%d matched=%d ambiguous=%d rejected=%d unresolved=%d precision=%.3f recall=%.3f f1=%.3f",
		r.Threshold, r.Survivors,
		r.Counts[model.StatusMatched], r.Counts[model.StatusAmbiguous],
		r.Counts[model.StatusRejected], r.Counts[model.StatusUnresolved],
		r.Precision, r.Recall, r.F1Score)
}
