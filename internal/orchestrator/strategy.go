package orchestrator

// #region stage-names

// Stage names shared by routing, bounds, records and metrics.
const (
	StageRetrieveObjects = "retrieve_objects"
	StageExtractLayout   = "extract_layout"
	StageAssignPlacement = "assign_placement"
	StageCheckPlacement  = "check_positional_error"
	StageFixPlacement    = "fix_positional_error"
	StageGenerateCode    = "generate_code"
	StageFixCode         = "fix_code"
	StageCheckDesc       = "check_description"
	StageAugment         = "augment"
)

// #endregion

// #region bounds

// DefaultBound applies to stages without an explicit entry.
const DefaultBound = 5

// Bounds maps stage names to their round bound.
type Bounds map[string]int

var defaultBounds = Bounds{
	StageAssignPlacement: 5,
	StageCheckPlacement:  5,
	StageGenerateCode:    5,
	StageAugment:         3,
}

// DefaultBounds returns a copy of the built-in table.
func DefaultBounds() Bounds {
	out := make(Bounds, len(defaultBounds))
	for k, v := range defaultBounds {
		out[k] = v
	}
	return out
}

// For returns the bound for stage.
func (b Bounds) For(stage string) int {
	if n, ok := b[stage]; ok && n > 0 {
		return n
	}
	if n, ok := defaultBounds[stage]; ok {
		return n
	}
	return DefaultBound
}

// #endregion
