package eval

import "github.com/danielpatrickdp/scenegen/internal/records"

// #region eval-config
// EvalConfig holds the acceptance thresholds for a batch.
type EvalConfig struct {
	MinPlacementPassRate float32 // fail if fewer placements validated
	MinScriptPassRate    float32 // fail if fewer scripts validated
	MaxMeanFailedRounds  float32 // fail if either stage needed more rounds on average
}

// DefaultEvalConfig returns thresholds a healthy fine-tuned oracle meets.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinPlacementPassRate: 0.8,
		MinScriptPassRate:    0.9,
		MaxMeanFailedRounds:  1.5,
	}
}

// #endregion eval-config

// #region batch
// Batch is everything one run produced.
type Batch struct {
	Placements []records.AssignPlacement
	Scripts    []records.GenerateCode
	Checks     []records.CheckPositionalError
	// Skipped counts descriptions dropped on a soft failure.
	Skipped int
}

// #endregion batch

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float32 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of a batch evaluation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// Metric returns the named metric.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
