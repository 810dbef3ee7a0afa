package matcher

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/complex-registry/app/config"
	"github.com/complex-registry/app/models"
)

// MatchInput is the pre-normalized view of a source record that the
// strategies score against candidates.
type MatchInput struct {
	NormalizedName string
	Region         models.Region
	CompletionYear *int
}

// Decision is the outcome of the pipeline for one source record.
type Decision struct {
	ComplexID  string
	Method     models.MatchMethod
	Confidence float64
}

// Strategy scores one candidate against a source record. ok reports
// whether the candidate qualifies under this strategy at all.
type Strategy interface {
	Method() models.MatchMethod
	Evaluate(src MatchInput, cand *models.CanonicalComplex) (confidence float64, ok bool)
}

// Pipeline runs the strategies in order; the first strategy with any
// qualifying candidate decides, later strategies are not evaluated and
// scores are never blended across strategies.
type Pipeline struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewPipeline builds the standard exact → fuzzy → region pipeline from
// the matcher configuration.
func NewPipeline(cfg config.MatcherCfg, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		strategies: []Strategy{
			ExactNameStrategy{},
			FuzzyNameStrategy{Threshold: cfg.Thresholds.Fuzzy},
			RegionStrategy{Threshold: cfg.Thresholds.Region, Weights: cfg.Weights},
		},
		logger: logger,
	}
}

// Match returns the winning decision, or nil when no strategy
// qualifies against any candidate (the record describes a new
// complex). Ties at the same strategy break by highest confidence,
// then earliest-created canonical id.
func (p *Pipeline) Match(src MatchInput, candidates []*models.CanonicalComplex) *Decision {
	for _, strategy := range p.strategies {
		var best *Decision
		for _, cand := range candidates {
			conf, ok := strategy.Evaluate(src, cand)
			if !ok {
				continue
			}
			if best == nil || conf > best.Confidence ||
				(conf == best.Confidence && cand.ID < best.ComplexID) {
				best = &Decision{ComplexID: cand.ID, Method: strategy.Method(), Confidence: conf}
			}
		}
		if best != nil {
			p.logger.Debug("match decided",
				zap.String("method", string(best.Method)),
				zap.String("complex_id", best.ComplexID),
				zap.Float64("confidence", best.Confidence))
			return best
		}
	}
	return nil
}

// regionsCompatible reports whether two regions can describe the same
// place. A level counts as a conflict only when both sides know it and
// disagree; unknown levels are a weak signal, not a veto.
func regionsCompatible(a, b models.Region) bool {
	if a.Province != nil && b.Province != nil && *a.Province != *b.Province {
		return false
	}
	if a.City != nil && b.City != nil && *a.City != *b.City {
		return false
	}
	if a.Subdistrict != nil && b.Subdistrict != nil && *a.Subdistrict != *b.Subdistrict {
		return false
	}
	return true
}

// ExactNameStrategy qualifies a candidate iff the normalized names are
// identical. Region conflicts disqualify: two legitimately distinct
// complexes can share a normalized name in different subdistricts.
type ExactNameStrategy struct{}

func (ExactNameStrategy) Method() models.MatchMethod { return models.MatchMethodExactName }

func (ExactNameStrategy) Evaluate(src MatchInput, cand *models.CanonicalComplex) (float64, bool) {
	if src.NormalizedName == "" || cand.NormalizedName == "" {
		return 0, false
	}
	if src.NormalizedName != cand.NormalizedName {
		return 0, false
	}
	if !regionsCompatible(src.Region, cand.Region) {
		return 0, false
	}
	return 1.0, true
}

// FuzzyNameStrategy qualifies a candidate iff Levenshtein similarity of
// the normalized names exceeds the threshold. Same region guard as the
// exact strategy.
type FuzzyNameStrategy struct {
	Threshold float64
}

func (FuzzyNameStrategy) Method() models.MatchMethod { return models.MatchMethodFuzzyName }

func (s FuzzyNameStrategy) Evaluate(src MatchInput, cand *models.CanonicalComplex) (float64, bool) {
	if src.NormalizedName == "" || cand.NormalizedName == "" {
		return 0, false
	}
	if !regionsCompatible(src.Region, cand.Region) {
		return 0, false
	}
	sim := Similarity(src.NormalizedName, cand.NormalizedName)
	if sim <= s.Threshold {
		return 0, false
	}
	return sim, true
}

// Similarity is normalized Levenshtein similarity in [0,1] on runes.
// Two empty strings are identical (similarity 1, no division by zero).
func Similarity(a, b string) float64 {
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// RegionStrategy qualifies on a weighted region overlap with a small
// completion-year-closeness bonus. It is the last resort for records
// whose names diverged too far for the name strategies.
type RegionStrategy struct {
	Threshold float64
	Weights   config.RegionWeights
}

func (RegionStrategy) Method() models.MatchMethod { return models.MatchMethodRegion }

func (s RegionStrategy) Evaluate(src MatchInput, cand *models.CanonicalComplex) (float64, bool) {
	score := 0.0
	if src.Region.Province != nil && cand.Region.Province != nil && *src.Region.Province == *cand.Region.Province {
		score += s.Weights.Province
	}
	if src.Region.City != nil && cand.Region.City != nil && *src.Region.City == *cand.Region.City {
		score += s.Weights.City
	}
	if src.Region.Subdistrict != nil && cand.Region.Subdistrict != nil && *src.Region.Subdistrict == *cand.Region.Subdistrict {
		score += s.Weights.Subdistrict
	}
	if src.CompletionYear != nil && cand.CompletionYear != nil {
		diff := *src.CompletionYear - *cand.CompletionYear
		if diff < 0 {
			diff = -diff
		}
		if diff <= s.Weights.YearWindow {
			score += s.Weights.YearBonus
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	if score <= s.Threshold {
		return 0, false
	}
	return score, true
}
