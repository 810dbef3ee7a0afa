package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/complex-registry/app/models"
	"github.com/complex-registry/internal/matcher"
	"github.com/complex-registry/internal/normalizer"
	"github.com/complex-registry/internal/parser"
	"github.com/complex-registry/internal/store"
)

// ComplexIndexer mirrors canonical mutations into an external search
// index. Optional; nil when no index is deployed.
type ComplexIndexer interface {
	IndexComplex(c *models.CanonicalComplex) error
	RemoveComplex(id string) error
}

// Resolution is the outcome of resolving one source record.
type Resolution struct {
	CanonicalID string             `json:"canonical_id"`
	Created     bool               `json:"created"`
	Skipped     bool               `json:"skipped"` // already mapped, nothing done
	Method      models.MatchMethod `json:"method"`
	Confidence  float64            `json:"confidence"`
}

// MergeService decides, for each source record, whether it describes an
// already-known canonical complex (enrich it) or a new one (insert it),
// and records provenance either way.
type MergeService struct {
	store    store.Store
	finder   matcher.CandidateFinder
	pipeline *matcher.Pipeline
	names    *normalizer.NameNormalizer
	regions  *normalizer.RegionExtractor
	cache    ResolveCache   // optional
	indexer  ComplexIndexer // optional
	logger   *zap.Logger

	// Mutations to one canonical complex are serialized here: two
	// concurrent fill-if-null merges on the same field are a
	// lost-update hazard.
	locks sync.Map // complex id → *sync.Mutex
}

// NewMergeService wires the merge engine. cache and indexer may be nil.
func NewMergeService(st store.Store, finder matcher.CandidateFinder, pipeline *matcher.Pipeline,
	names *normalizer.NameNormalizer, regions *normalizer.RegionExtractor,
	cache ResolveCache, indexer ComplexIndexer, logger *zap.Logger) *MergeService {
	return &MergeService{
		store:    st,
		finder:   finder,
		pipeline: pipeline,
		names:    names,
		regions:  regions,
		cache:    cache,
		indexer:  indexer,
		logger:   logger,
	}
}

// Resolve maps one source record onto the canonical store. Idempotent:
// a record whose (sourceType, sourceId) is already mapped skips the
// canonical mutation, but its transaction/listing payload is still
// attached, so a retry after a partial failure lands the child rows
// the first attempt missed.
func (s *MergeService) Resolve(ctx context.Context, rec *models.SourceRecord) (*Resolution, error) {
	key := rec.Key()

	if s.cache != nil {
		if id, ok, _ := s.cache.Get(ctx, key); ok {
			return s.finish(ctx, rec, key, &Resolution{CanonicalID: id, Skipped: true})
		}
	}

	existing, err := s.store.GetProvenanceBySource(ctx, rec.SourceType, rec.SourceID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("provenance lookup %s: %w", key, err)
	}
	if existing != nil {
		return s.finish(ctx, rec, key, &Resolution{CanonicalID: existing.CanonicalID, Skipped: true})
	}

	normalized := s.names.Normalize(rec.Name)
	region := s.regions.Extract(rec.RawAddress)
	coords := parser.SanitizeCoordinates(rec.Coordinates)

	in := matcher.MatchInput{
		NormalizedName: normalized,
		Region:         region,
		CompletionYear: rec.CompletionYear,
	}

	candidates, err := s.finder.FindCandidates(ctx, in, coords)
	if err != nil {
		return nil, fmt.Errorf("candidate retrieval %s: %w", key, err)
	}

	decision := s.pipeline.Match(in, candidates)

	var res *Resolution
	if decision != nil {
		res, err = s.enrich(ctx, rec, in, coords, decision)
	} else {
		res, err = s.insert(ctx, rec, in, coords, normalized)
	}
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, rec, key, res)
}

// finish attaches the record's child rows and refreshes the resolve
// cache. Child writes are keyed by the source observation, so running
// this on a skipped resolution recovers a transaction or listing lost
// to an earlier partial failure without duplicating anything.
func (s *MergeService) finish(ctx context.Context, rec *models.SourceRecord, key string, res *Resolution) (*Resolution, error) {
	if res.CanonicalID == "" {
		return res, nil
	}
	if err := s.attachChildren(ctx, rec, res.CanonicalID); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, res.CanonicalID)
	return res, nil
}

// enrich merges the record into a matched canonical complex under the
// entity lock, fill-if-null only.
func (s *MergeService) enrich(ctx context.Context, rec *models.SourceRecord, in matcher.MatchInput,
	coords *models.Coordinates, decision *matcher.Decision) (*Resolution, error) {

	unlock := s.lock(decision.ComplexID)
	defer unlock()

	// Re-read inside the lock: another record may have merged into
	// this entity since the candidates were retrieved.
	c, err := s.store.GetComplex(ctx, decision.ComplexID)
	if err != nil {
		return nil, fmt.Errorf("load matched complex %s: %w", decision.ComplexID, err)
	}

	s.fillComplex(c, rec, in, coords)
	c.AddDataSource(rec.SourceType)
	c.UpdatedAt = time.Now()

	prov := &models.ProvenanceMapping{
		CanonicalID: c.ID,
		SourceType:  rec.SourceType,
		SourceID:    rec.SourceID,
		MatchMethod: decision.Method,
		Confidence:  decision.Confidence,
		CreatedAt:   time.Now(),
	}

	if err := s.store.ApplyResolution(ctx, c, prov, false); err != nil {
		if errors.Is(err, store.ErrDuplicateProvenance) {
			// Lost a race with a concurrent ingestion of the same
			// observation; the other writer's result stands.
			return &Resolution{CanonicalID: c.ID, Skipped: true}, nil
		}
		return nil, fmt.Errorf("apply merge %s: %w", rec.Key(), err)
	}

	s.reindex(c)
	s.logger.Debug("merged source record",
		zap.String("source", rec.Key()),
		zap.String("complex_id", c.ID),
		zap.String("method", string(decision.Method)),
		zap.Float64("confidence", decision.Confidence))

	return &Resolution{
		CanonicalID: c.ID,
		Method:      decision.Method,
		Confidence:  decision.Confidence,
	}, nil
}

// insert creates a new canonical complex seeded only from fields
// present on the source record. Unknown fields stay nil, never
// defaulted.
func (s *MergeService) insert(ctx context.Context, rec *models.SourceRecord, in matcher.MatchInput,
	coords *models.Coordinates, normalized string) (*Resolution, error) {

	now := time.Now()
	c := &models.CanonicalComplex{
		ID:               models.NewComplexID(),
		Name:             rec.Name,
		NormalizedName:   normalized,
		AsciiName:        s.names.AsciiFold(normalized),
		Region:           in.Region,
		Coordinates:      coords,
		CompletionYear:   rec.CompletionYear,
		TotalUnits:       rec.TotalUnits,
		TotalBuildings:   rec.TotalBuildings,
		CrawlingPriority: models.PriorityForVolume(0),
		DataSources:      []string{rec.SourceType},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if normalized == "" && in.Region.IsEmpty() {
		// Malformed input is still worth keeping; partial data is
		// better than none.
		s.logger.Warn("low-confidence insertion: record has neither name nor region",
			zap.String("source", rec.Key()))
	}

	prov := &models.ProvenanceMapping{
		CanonicalID: c.ID,
		SourceType:  rec.SourceType,
		SourceID:    rec.SourceID,
		MatchMethod: models.MatchMethodNewComplex,
		Confidence:  1.0,
		CreatedAt:   now,
	}

	if err := s.store.ApplyResolution(ctx, c, prov, true); err != nil {
		if errors.Is(err, store.ErrDuplicateProvenance) {
			if existing, lookupErr := s.store.GetProvenanceBySource(ctx, rec.SourceType, rec.SourceID); lookupErr == nil {
				return &Resolution{CanonicalID: existing.CanonicalID, Skipped: true}, nil
			}
			return &Resolution{Skipped: true}, nil
		}
		return nil, fmt.Errorf("insert complex for %s: %w", rec.Key(), err)
	}

	s.reindex(c)
	s.logger.Debug("inserted new complex",
		zap.String("source", rec.Key()),
		zap.String("complex_id", c.ID),
		zap.String("normalized_name", normalized))

	return &Resolution{
		CanonicalID: c.ID,
		Created:     true,
		Method:      models.MatchMethodNewComplex,
		Confidence:  1.0,
	}, nil
}

// attachChildren appends the record's transaction/listing payloads and
// keeps the crawling priority in step with transaction volume.
func (s *MergeService) attachChildren(ctx context.Context, rec *models.SourceRecord, canonicalID string) error {
	if rec.Transaction != nil {
		tr := models.NewTransactionRecord(canonicalID, rec.SourceType, rec.SourceID, rec.Transaction)
		if err := s.store.InsertTransaction(ctx, tr); err != nil {
			return fmt.Errorf("attach transaction %s: %w", rec.Key(), err)
		}
		if err := s.recomputePriority(ctx, canonicalID); err != nil {
			s.logger.Warn("priority recompute failed", zap.String("complex_id", canonicalID), zap.Error(err))
		}
	}

	if rec.Listing != nil {
		l := models.NewListingRecord(canonicalID, rec.SourceType, rec.Listing)
		if err := s.store.UpsertListing(ctx, l); err != nil {
			return fmt.Errorf("attach listing %s: %w", rec.Key(), err)
		}
	}
	return nil
}

// recomputePriority raises (never lowers) the crawling priority from
// the observed transaction volume.
func (s *MergeService) recomputePriority(ctx context.Context, canonicalID string) error {
	unlock := s.lock(canonicalID)
	defer unlock()

	count, err := s.store.CountTransactions(ctx, canonicalID)
	if err != nil {
		return err
	}
	c, err := s.store.GetComplex(ctx, canonicalID)
	if err != nil {
		return err
	}
	next := models.PriorityForVolume(count)
	if next <= c.CrawlingPriority {
		return nil
	}
	c.CrawlingPriority = next
	c.UpdatedAt = time.Now()
	return s.store.UpdateComplex(ctx, c)
}

func (s *MergeService) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *MergeService) cacheSet(ctx context.Context, key, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, id); err != nil {
		s.logger.Warn("resolve-cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *MergeService) reindex(c *models.CanonicalComplex) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexComplex(c); err != nil {
		s.logger.Warn("search index write failed", zap.String("complex_id", c.ID), zap.Error(err))
	}
}

// fillComplex applies the fill-if-null precedence: a populated field is
// never overwritten, numeric fields use first non-null wins. Filling
// the normalized name also refreshes the ascii fingerprint derived
// from it.
func (s *MergeService) fillComplex(c *models.CanonicalComplex, rec *models.SourceRecord, in matcher.MatchInput, coords *models.Coordinates) {
	if c.Name == "" && rec.Name != "" {
		c.Name = rec.Name
	}
	if c.NormalizedName == "" && in.NormalizedName != "" {
		c.NormalizedName = in.NormalizedName
		c.AsciiName = s.names.AsciiFold(in.NormalizedName)
	}
	if c.Region.Province == nil && in.Region.Province != nil {
		c.Region.Province = in.Region.Province
	}
	if c.Region.City == nil && in.Region.City != nil {
		c.Region.City = in.Region.City
	}
	if c.Region.Subdistrict == nil && in.Region.Subdistrict != nil {
		c.Region.Subdistrict = in.Region.Subdistrict
	}
	if c.Coordinates == nil && coords != nil {
		c.Coordinates = coords
	}
	if c.CompletionYear == nil && rec.CompletionYear != nil {
		c.CompletionYear = rec.CompletionYear
	}
	if c.TotalUnits == nil && rec.TotalUnits != nil {
		c.TotalUnits = rec.TotalUnits
	}
	if c.TotalBuildings == nil && rec.TotalBuildings != nil {
		c.TotalBuildings = rec.TotalBuildings
	}
}
