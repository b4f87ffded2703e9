package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/scenegen/internal/eval"
	"github.com/danielpatrickdp/scenegen/internal/gate"
	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/pipeline"
	"github.com/danielpatrickdp/scenegen/internal/records"
)

// DefaultTranscript names the transcript serving stages without their own.
const DefaultTranscript = "default"

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	Config      FixtureConfig `json:"config"`
	// Transcripts maps a stage name (or "default") to its recorded replies,
	// in the order the oracle gave them.
	Transcripts     map[string][]string     `json:"transcripts"`
	Scenes          []records.Description   `json:"scenes"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureExpectedResult captures the expected action per scene.
type FixtureExpectedResult struct {
	ID     int    `json:"id"`
	Action string `json:"action"`
}

// FixtureConfig bundles all sub-configs for a replay run.
type FixtureConfig struct {
	ParseBound  int               `json:"parse_bound"`
	SyntaxCheck bool              `json:"syntax_check"`
	Bounds      map[string]int    `json:"bounds"`
	GateConfig  FixtureGateConfig `json:"gate_config"`
	EvalConfig  FixtureEvalConfig `json:"eval_config"`
}

// FixtureGateConfig mirrors gate.GateConfig with JSON tags.
type FixtureGateConfig struct {
	MaxFailedRounds  int  `json:"max_failed_rounds"`
	DiscardExhausted bool `json:"discard_exhausted"`
	FlagOverlaps     bool `json:"flag_overlaps"`
}

// FixtureEvalConfig mirrors eval.EvalConfig with JSON tags.
type FixtureEvalConfig struct {
	MinPlacementPassRate float32 `json:"min_placement_pass_rate"`
	MinScriptPassRate    float32 `json:"min_script_pass_rate"`
	MaxMeanFailedRounds  float32 `json:"max_mean_failed_rounds"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Router serves every transcript from its own scripted oracle. Stages
// without a transcript fall back to the default one.
func (f *Fixture) Router() (oracle.Router, map[string]*oracle.TranscriptBackend) {
	def, defTB := oracle.NewScripted(f.Transcripts[DefaultTranscript]...)
	r := oracle.Router{Default: def, Stages: map[string]oracle.Oracle{}}
	backends := map[string]*oracle.TranscriptBackend{DefaultTranscript: defTB}
	for stage, replies := range f.Transcripts {
		if stage == DefaultTranscript {
			continue
		}
		c, tb := oracle.NewScripted(replies...)
		r.Stages[stage] = c
		backends[stage] = tb
	}
	return r, backends
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	return ReplayConfig{
		Options: pipeline.Options{
			ParseBound:  fc.ParseBound,
			SyntaxCheck: fc.SyntaxCheck,
		},
		Bounds: orchestrator.Bounds(fc.Bounds),
		GateConfig: gate.GateConfig{
			MaxFailedRounds:  fc.GateConfig.MaxFailedRounds,
			DiscardExhausted: fc.GateConfig.DiscardExhausted,
			FlagOverlaps:     fc.GateConfig.FlagOverlaps,
		},
		EvalConfig: eval.EvalConfig{
			MinPlacementPassRate: fc.EvalConfig.MinPlacementPassRate,
			MinScriptPassRate:    fc.EvalConfig.MinScriptPassRate,
			MaxMeanFailedRounds:  fc.EvalConfig.MaxMeanFailedRounds,
		},
	}
}

// #endregion fixture-loader
