package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xrash/smetrics"
	"go.uber.org/zap"

	"github.com/complex-registry/app/config"
	"github.com/complex-registry/app/models"
	"github.com/complex-registry/internal/parser"
	"github.com/complex-registry/internal/store"
)

// DedupService finds canonical complexes that slipped past the match
// pipeline as separate entities and collapses each group into a single
// survivor. Safe to re-run: a second pass over a deduplicated store
// finds only singleton groups and changes nothing.
type DedupService struct {
	store   store.Store
	indexer ComplexIndexer // optional
	cache   ResolveCache   // optional
	cfg     config.DedupCfg
	logger  *zap.Logger
}

func NewDedupService(st store.Store, indexer ComplexIndexer, cache ResolveCache, cfg config.DedupCfg, logger *zap.Logger) *DedupService {
	if cfg.CoordPrecision <= 0 {
		cfg.CoordPrecision = config.Default().Dedup.CoordPrecision
	}
	if cfg.NameFloor <= 0 {
		cfg.NameFloor = config.Default().Dedup.NameFloor
	}
	return &DedupService{store: st, indexer: indexer, cache: cache, cfg: cfg, logger: logger}
}

const (
	dedupPageSize   = 200
	dedupGroupLimit = 50
)

// Run walks the whole store in id order, resuming from the last
// checkpoint, and merges every duplicate group it finds.
func (s *DedupService) Run(ctx context.Context) (*models.DedupReport, error) {
	report := &models.DedupReport{}

	afterID, err := s.store.GetDedupCheckpoint(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load dedup checkpoint: %w", err)
	}
	if afterID != "" {
		s.logger.Info("resuming dedup from checkpoint", zap.String("after_id", afterID))
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("dedup aborted: %w", err)
		}

		page, err := s.store.ListComplexes(ctx, afterID, dedupPageSize)
		if err != nil {
			return report, fmt.Errorf("list complexes after %q: %w", afterID, err)
		}
		if len(page) == 0 {
			break
		}

		for _, c := range page {
			afterID = c.ID

			// May have been retired while processing an earlier
			// member of its own group.
			if _, err := s.store.GetComplex(ctx, c.ID); errors.Is(err, store.ErrNotFound) {
				continue
			} else if err != nil {
				return report, fmt.Errorf("reload complex %s: %w", c.ID, err)
			}

			group, err := s.groupFor(ctx, c)
			if err != nil {
				return report, err
			}
			report.GroupsExamined++
			if len(group) < 2 {
				continue
			}

			if err := s.mergeGroup(ctx, group, report); err != nil {
				return report, err
			}

			if err := s.store.SetDedupCheckpoint(ctx, afterID); err != nil {
				s.logger.Warn("checkpoint write failed", zap.String("after_id", afterID), zap.Error(err))
			}
		}
	}

	if err := s.store.ClearDedupCheckpoint(ctx); err != nil {
		s.logger.Warn("checkpoint clear failed", zap.Error(err))
	}

	s.logger.Info("dedup pass complete",
		zap.Int("groups_examined", report.GroupsExamined),
		zap.Int("groups_merged", report.Merged),
		zap.Int("complexes_retired", report.Retired),
		zap.Int("id_tie_breaks", report.TieBreaks))
	return report, nil
}

// groupFor returns c plus every stored complex that duplicates it.
// Complexes with coordinates group by rounded coordinate cell, gated by
// a name-similarity floor so distinct complexes sharing a cell are left
// alone. Complexes without coordinates group by normalized name within
// the same subdistrict.
func (s *DedupService) groupFor(ctx context.Context, c *models.CanonicalComplex) ([]*models.CanonicalComplex, error) {
	if c.Coordinates != nil && parser.ValidCoordinates(c.Coordinates.Latitude, c.Coordinates.Longitude) {
		key := models.CoordKey(c.Coordinates.Latitude, c.Coordinates.Longitude, s.cfg.CoordPrecision)
		neighbors, err := s.store.FindByCoordKey(ctx, key, dedupGroupLimit)
		if err != nil {
			return nil, fmt.Errorf("coord group %s: %w", key, err)
		}
		group := []*models.CanonicalComplex{c}
		for _, n := range neighbors {
			if n.ID == c.ID {
				continue
			}
			if smetrics.JaroWinkler(c.NormalizedName, n.NormalizedName, 0.7, 4) >= s.cfg.NameFloor {
				group = append(group, n)
			}
		}
		return group, nil
	}

	// No usable coordinates: same normalized name in the same
	// subdistrict. Without a subdistrict there is not enough evidence
	// to call two entries duplicates.
	if c.NormalizedName == "" || c.Region.Subdistrict == nil {
		return []*models.CanonicalComplex{c}, nil
	}
	sameName, err := s.store.FindByNormalizedName(ctx, c.NormalizedName, dedupGroupLimit)
	if err != nil {
		return nil, fmt.Errorf("name group %q: %w", c.NormalizedName, err)
	}
	group := []*models.CanonicalComplex{c}
	for _, n := range sameName {
		if n.ID == c.ID {
			continue
		}
		if n.Region.Subdistrict != nil && *n.Region.Subdistrict == *c.Region.Subdistrict {
			group = append(group, n)
		}
	}
	return group, nil
}

// mergeGroup collapses a duplicate group into its survivor and retires
// the rest.
func (s *DedupService) mergeGroup(ctx context.Context, group []*models.CanonicalComplex, report *models.DedupReport) error {
	sortForSurvivor(group)
	survivor, losers := group[0], group[1:]

	if idTieBreakOnly(survivor, losers[0]) {
		report.TieBreaks++
		s.logger.Warn("survivor chosen by id tie-break alone",
			zap.String("survivor_id", survivor.ID),
			zap.String("normalized_name", survivor.NormalizedName),
			zap.Int("group_size", len(group)))
	}

	for _, loser := range losers {
		keys := s.resolveKeysFor(ctx, loser.ID)
		if err := s.store.RepointChildren(ctx, loser.ID, survivor.ID); err != nil {
			return fmt.Errorf("repoint %s onto %s: %w", loser.ID, survivor.ID, err)
		}
		fillFromLoser(survivor, loser)
		for _, src := range loser.DataSources {
			survivor.AddDataSource(src)
		}
		if err := s.store.DeleteComplex(ctx, loser.ID); err != nil {
			return fmt.Errorf("retire %s: %w", loser.ID, err)
		}
		if s.indexer != nil {
			if err := s.indexer.RemoveComplex(loser.ID); err != nil {
				s.logger.Warn("search index removal failed", zap.String("complex_id", loser.ID), zap.Error(err))
			}
		}
		for _, key := range keys {
			if err := s.cache.Set(ctx, key, survivor.ID); err != nil {
				s.logger.Warn("resolve-cache repoint failed", zap.String("key", key), zap.Error(err))
			}
		}
		s.logger.Info("retired duplicate complex",
			zap.String("survivor_id", survivor.ID),
			zap.String("retired_id", loser.ID),
			zap.String("normalized_name", loser.NormalizedName))
	}

	count, err := s.store.CountTransactions(ctx, survivor.ID)
	if err != nil {
		return fmt.Errorf("count transactions %s: %w", survivor.ID, err)
	}
	if p := models.PriorityForVolume(count); p > survivor.CrawlingPriority {
		survivor.CrawlingPriority = p
	}
	survivor.UpdatedAt = time.Now()
	if err := s.store.UpdateComplex(ctx, survivor); err != nil {
		return fmt.Errorf("update survivor %s: %w", survivor.ID, err)
	}
	if s.indexer != nil {
		if err := s.indexer.IndexComplex(survivor); err != nil {
			s.logger.Warn("search index write failed", zap.String("complex_id", survivor.ID), zap.Error(err))
		}
	}
	report.Merged++
	report.Retired += len(losers)
	return nil
}

// resolveKeysFor collects the source keys mapped to a complex about to
// be retired. Their cached resolutions are re-pointed at the survivor
// so a warm re-run never resolves to a deleted id.
func (s *DedupService) resolveKeysFor(ctx context.Context, complexID string) []string {
	if s.cache == nil {
		return nil
	}
	mappings, err := s.store.ListProvenanceByComplex(ctx, complexID)
	if err != nil {
		s.logger.Warn("provenance listing failed, cached resolutions left stale",
			zap.String("complex_id", complexID), zap.Error(err))
		return nil
	}
	keys := make([]string, 0, len(mappings))
	for _, pm := range mappings {
		keys = append(keys, pm.Key())
	}
	return keys
}

// sortForSurvivor orders a group best-first: usable coordinates beat
// none, a known region beats an unknown one, then earliest-created,
// then lowest id so the outcome is stable.
func sortForSurvivor(group []*models.CanonicalComplex) {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i], group[j]
		ac, bc := hasValidCoords(a), hasValidCoords(b)
		if ac != bc {
			return ac
		}
		ar, br := a.HasRegion(), b.HasRegion()
		if ar != br {
			return ar
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func hasValidCoords(c *models.CanonicalComplex) bool {
	return c.Coordinates != nil && parser.ValidCoordinates(c.Coordinates.Latitude, c.Coordinates.Longitude)
}

// idTieBreakOnly reports whether survivorship between the two best
// group members came down to the id comparison alone. Those merges
// carry the least evidence and are surfaced for audit.
func idTieBreakOnly(a, b *models.CanonicalComplex) bool {
	return hasValidCoords(a) == hasValidCoords(b) &&
		a.HasRegion() == b.HasRegion() &&
		a.CreatedAt.Equal(b.CreatedAt)
}

// fillFromLoser copies fields the survivor is missing from a retired
// duplicate. Populated survivor fields always win.
func fillFromLoser(survivor, loser *models.CanonicalComplex) {
	if survivor.Name == "" && loser.Name != "" {
		survivor.Name = loser.Name
	}
	if survivor.NormalizedName == "" && loser.NormalizedName != "" {
		survivor.NormalizedName = loser.NormalizedName
	}
	if survivor.AsciiName == "" && loser.AsciiName != "" {
		survivor.AsciiName = loser.AsciiName
	}
	if survivor.Region.Province == nil && loser.Region.Province != nil {
		survivor.Region.Province = loser.Region.Province
	}
	if survivor.Region.City == nil && loser.Region.City != nil {
		survivor.Region.City = loser.Region.City
	}
	if survivor.Region.Subdistrict == nil && loser.Region.Subdistrict != nil {
		survivor.Region.Subdistrict = loser.Region.Subdistrict
	}
	if survivor.Coordinates == nil && loser.Coordinates != nil {
		survivor.Coordinates = loser.Coordinates
	}
	if survivor.CompletionYear == nil && loser.CompletionYear != nil {
		survivor.CompletionYear = loser.CompletionYear
	}
	if survivor.TotalUnits == nil && loser.TotalUnits != nil {
		survivor.TotalUnits = loser.TotalUnits
	}
	if survivor.TotalBuildings == nil && loser.TotalBuildings != nil {
		survivor.TotalBuildings = loser.TotalBuildings
	}
}
