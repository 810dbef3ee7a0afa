package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// RegionWeights are the additive weights of the region heuristic
// strategy. They sum to 1.0 before the year bonus.
type RegionWeights struct {
	Province    float64 `yaml:"province" json:"province"`
	City        float64 `yaml:"city" json:"city"`
	Subdistrict float64 `yaml:"subdistrict" json:"subdistrict"`
	YearBonus   float64 `yaml:"year_bonus" json:"year_bonus"`
	YearWindow  int     `yaml:"year_window" json:"year_window"`
}

// Thresholds are the strategy qualification cutoffs. These are untuned
// operational guesses, kept configurable so they can be validated
// empirically without code changes.
type Thresholds struct {
	Fuzzy  float64 `yaml:"fuzzy" json:"fuzzy"`
	Region float64 `yaml:"region" json:"region"`
}

// DedupCfg controls the duplicate-resolution pass.
type DedupCfg struct {
	CoordPrecision int     `yaml:"coord_precision" json:"coord_precision"`
	NameFloor      float64 `yaml:"name_floor" json:"name_floor"` // JaroWinkler compatibility floor
}

// BatchCfg controls ingest chunking and worker parallelism.
type BatchCfg struct {
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	Workers   int `yaml:"workers" json:"workers"`
}

// MatcherCfg is the full matching configuration, loaded from
// config/matcher.yaml with env overrides.
type MatcherCfg struct {
	MaxCandidates int           `yaml:"max_candidates" json:"max_candidates"`
	Thresholds    Thresholds    `yaml:"thresholds" json:"thresholds"`
	Weights       RegionWeights `yaml:"weights" json:"weights"`
	Dedup         DedupCfg      `yaml:"dedup" json:"dedup"`
	Batch         BatchCfg      `yaml:"batch" json:"batch"`
}

var C = Default()

// Default returns the built-in configuration. Tests and callers that
// skip Load get these values.
func Default() MatcherCfg {
	return MatcherCfg{
		MaxCandidates: 20,
		Thresholds: Thresholds{
			Fuzzy:  0.8,
			Region: 0.7,
		},
		Weights: RegionWeights{
			Province:    0.3,
			City:        0.4,
			Subdistrict: 0.3,
			YearBonus:   0.1,
			YearWindow:  2,
		},
		Dedup: DedupCfg{
			CoordPrecision: 4,
			NameFloor:      0.85,
		},
		Batch: BatchCfg{
			ChunkSize: 500,
			Workers:   4,
		},
	}
}

// Load reads the matcher configuration file into C. Missing keys keep
// their defaults.
func Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return err
	}
	// ENV overrides
	if v := os.Getenv("MATCHER_FUZZY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Fuzzy = f
		}
	}
	if v := os.Getenv("MATCHER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Batch.Workers = n
		}
	}
	C = cfg
	return nil
}
