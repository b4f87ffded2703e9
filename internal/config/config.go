// Package config loads the YAML run configuration, applies environment
// overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/scenegen/internal/dedup"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/placement"
)

// #region types
// Config is the full run configuration.
type Config struct {
	DB         string          `yaml:"db" validate:"required"`
	OutDir     string          `yaml:"out_dir" validate:"required"`
	Log        LogConfig       `yaml:"log"`
	Oracle     OracleConfig    `yaml:"oracle"`
	Bounds     map[string]int  `yaml:"bounds" validate:"dive,keys,required,endkeys,gte=1,lte=50"`
	ParseBound int             `yaml:"parse_bound" validate:"gte=0"`
	Dedup      DedupConfig     `yaml:"dedup"`
	Batch      BatchConfig     `yaml:"batch"`
	Augment    AugmentConfig   `yaml:"augment"`
	Script     ScriptConfig    `yaml:"script"`
	Placement  PlacementConfig `yaml:"placement"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// OracleConfig is the default backend plus per-stage overrides.
type OracleConfig struct {
	Backend       string                 `yaml:"backend" validate:"oneof=openai gemini grpc"`
	Model         string                 `yaml:"model" validate:"required"`
	BaseURL       string                 `yaml:"base_url" validate:"omitempty,url"`
	APIKey        string                 `yaml:"api_key"`
	Addr          string                 `yaml:"addr" validate:"required_if=Backend grpc"`
	Temperature   float32                `yaml:"temperature" validate:"gte=0,lte=2"`
	Attempts      int                    `yaml:"attempts" validate:"gte=1,lte=20"`
	RatePerSecond float64                `yaml:"rate_per_second" validate:"gte=0"`
	Burst         int                    `yaml:"burst" validate:"gte=0"`
	Stages        map[string]StageOracle `yaml:"stages" validate:"dive"`
}

// StageOracle overrides the model (and optionally the backend) for one
// stage. Empty fields inherit from the default.
type StageOracle struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=openai gemini grpc"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// DedupConfig sizes the signature index.
type DedupConfig struct {
	Threshold float64 `yaml:"threshold" validate:"gt=0,lte=1"`
	NumPerm   int     `yaml:"num_perm" validate:"gte=16,lte=1024"`
}

// BatchConfig sizes the worker pools.
type BatchConfig struct {
	Workers     int `yaml:"workers" validate:"gte=1,lte=64"`
	EvalWorkers int `yaml:"eval_workers" validate:"gte=1,lte=64"`
}

// AugmentConfig drives description augmentation.
type AugmentConfig struct {
	Needed      int   `yaml:"needed" validate:"gte=0"`
	IDStartFrom int   `yaml:"id_start_from" validate:"gte=1"`
	Seed        int64 `yaml:"seed"`
}

// ScriptConfig controls script generation checks.
type ScriptConfig struct {
	SyntaxCheck bool   `yaml:"syntax_check"`
	GuidanceDir string `yaml:"guidance_dir"`
}

// PlacementConfig bounds local fallback placement.
type PlacementConfig struct {
	Range placement.Range `yaml:"range" validate:"required"`
}
// #endregion types

// #region defaults
// Default returns the configuration used when no file is given.
func Default() Config {
	bounds := make(map[string]int)
	for k, v := range orchestrator.DefaultBounds() {
		bounds[k] = v
	}
	return Config{
		DB:     "scenegen.db",
		OutDir: "out",
		Log:    LogConfig{Level: "info"},
		Oracle: OracleConfig{
			Backend:     "openai",
			Model:       "scenegen",
			BaseURL:     "http://localhost:8000/v1",
			Addr:        "localhost:50051",
			Temperature: 0.7,
			Attempts:    5,
		},
		Bounds:     bounds,
		ParseBound: 20,
		Dedup:      DedupConfig{Threshold: dedup.DefaultThreshold, NumPerm: dedup.DefaultNumPerm},
		Batch:      BatchConfig{Workers: 10, EvalWorkers: 8},
		Augment:    AugmentConfig{Needed: 3000, IDStartFrom: 1, Seed: 42},
		Placement:  PlacementConfig{Range: placement.DefaultRange},
	}
}
// #endregion defaults

// #region load
var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DB = envOr("SCENEGEN_DB", c.DB)
	c.Oracle.Addr = envOr("SCENEGEN_ORACLE_ADDR", c.Oracle.Addr)
	c.Oracle.BaseURL = envOr("OPENAI_BASE_URL", c.Oracle.BaseURL)
	switch c.Oracle.Backend {
	case "openai":
		c.Oracle.APIKey = envOr("OPENAI_API_KEY", c.Oracle.APIKey)
	case "gemini":
		c.Oracle.APIKey = envOr("GEMINI_API_KEY", c.Oracle.APIKey)
	}
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Oracle.Backend == "gemini" && c.Oracle.APIKey == "" {
		return errors.New("invalid config: gemini backend needs GEMINI_API_KEY")
	}
	if c.Placement.Range.Min >= c.Placement.Range.Max {
		return fmt.Errorf("invalid config: placement range [%d, %d] is empty", c.Placement.Range.Min, c.Placement.Range.Max)
	}
	return nil
}

// OrchestratorBounds converts the bounds table.
func (c Config) OrchestratorBounds() orchestrator.Bounds {
	return orchestrator.Bounds(c.Bounds)
}
// #endregion load

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
// #endregion helpers
