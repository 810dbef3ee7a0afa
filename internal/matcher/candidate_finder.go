package matcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/complex-registry/app/config"
	"github.com/complex-registry/app/models"
	"github.com/complex-registry/internal/store"
)

// CandidateFinder retrieves a bounded set of plausible canonical
// matches for one source record. An empty result means "nothing a
// priori plausible" and flows into new-complex creation; it is never an
// error.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, in MatchInput, coords *models.Coordinates) ([]*models.CanonicalComplex, error)
}

// StoreCandidateFinder scopes retrieval through the store's indexes:
// exact normalized name, (province, city) region, and rounded
// coordinate proximity. It never falls back to a full-store scan.
type StoreCandidateFinder struct {
	store          store.Store
	logger         *zap.Logger
	maxCandidates  int
	coordPrecision int
}

// NewStoreCandidateFinder builds the default finder.
func NewStoreCandidateFinder(st store.Store, cfg config.MatcherCfg, logger *zap.Logger) *StoreCandidateFinder {
	return &StoreCandidateFinder{
		store:          st,
		logger:         logger,
		maxCandidates:  cfg.MaxCandidates,
		coordPrecision: cfg.Dedup.CoordPrecision,
	}
}

func (f *StoreCandidateFinder) FindCandidates(ctx context.Context, in MatchInput, coords *models.Coordinates) ([]*models.CanonicalComplex, error) {
	seen := make(map[string]bool)
	out := make([]*models.CanonicalComplex, 0, f.maxCandidates)

	add := func(found []*models.CanonicalComplex) {
		for _, c := range found {
			if len(out) >= f.maxCandidates {
				return
			}
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}

	if in.NormalizedName != "" {
		byName, err := f.store.FindByNormalizedName(ctx, in.NormalizedName, f.maxCandidates)
		if err != nil {
			return nil, fmt.Errorf("find by name: %w", err)
		}
		add(byName)
	}

	if coords != nil && len(out) < f.maxCandidates {
		key := models.CoordKey(coords.Latitude, coords.Longitude, f.coordPrecision)
		byCoord, err := f.store.FindByCoordKey(ctx, key, f.maxCandidates)
		if err != nil {
			return nil, fmt.Errorf("find by coordinates: %w", err)
		}
		add(byCoord)
	}

	if !in.Region.IsEmpty() && len(out) < f.maxCandidates {
		province, city := "", ""
		if in.Region.Province != nil {
			province = *in.Region.Province
		}
		if in.Region.City != nil {
			city = *in.Region.City
		}
		byRegion, err := f.store.FindByRegion(ctx, province, city, f.maxCandidates)
		if err != nil {
			return nil, fmt.Errorf("find by region: %w", err)
		}
		add(byRegion)
	}

	f.logger.Debug("candidate retrieval",
		zap.String("normalized_name", in.NormalizedName),
		zap.Int("candidates", len(out)))
	return out, nil
}

var _ CandidateFinder = (*StoreCandidateFinder)(nil)
