package search

import (
	"context"
	"fmt"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/complex-registry/app/models"
	"github.com/complex-registry/internal/matcher"
	"github.com/complex-registry/internal/store"
)

// ComplexSearcher maintains a Meilisearch index of canonical complexes
// for typo-tolerant name retrieval. It is an optional candidate source:
// deployments without Meilisearch use the store-index finder alone.
type ComplexSearcher struct {
	client    meilisearch.ServiceManager
	logger    *zap.Logger
	indexName string
	timeout   time.Duration
}

// SearchConfig configures the Meilisearch connection.
type SearchConfig struct {
	Host      string
	APIKey    string
	IndexName string
	Timeout   time.Duration
}

// complexDoc is the slim document shape indexed per complex.
type complexDoc struct {
	ID             string `json:"id"`
	NormalizedName string `json:"normalized_name"`
	AsciiName      string `json:"ascii_name"`
	Subdistrict    string `json:"subdistrict,omitempty"`
}

// NewComplexSearcher connects and verifies the instance is reachable.
func NewComplexSearcher(config SearchConfig, logger *zap.Logger) (*ComplexSearcher, error) {
	client := meilisearch.New(config.Host, meilisearch.WithAPIKey(config.APIKey))

	if _, err := client.Health(); err != nil {
		return nil, fmt.Errorf("meilisearch unreachable: %w", err)
	}

	return &ComplexSearcher{
		client:    client,
		logger:    logger,
		indexName: config.IndexName,
		timeout:   config.Timeout,
	}, nil
}

// IndexComplex adds or refreshes one complex document. Called after
// inserts and dedup survivorship changes; indexing is advisory and a
// failed write only degrades recall, so errors are returned for logging
// but never abort ingestion.
func (cs *ComplexSearcher) IndexComplex(c *models.CanonicalComplex) error {
	doc := complexDoc{
		ID:             c.ID,
		NormalizedName: c.NormalizedName,
		AsciiName:      c.AsciiName,
	}
	if c.Region.Subdistrict != nil {
		doc.Subdistrict = *c.Region.Subdistrict
	}

	index := cs.client.Index(cs.indexName)
	if _, err := index.AddDocuments([]complexDoc{doc}); err != nil {
		return fmt.Errorf("index complex %s: %w", c.ID, err)
	}
	return nil
}

// ConfigureIndex applies the index settings and waits for the update
// task to settle. Run once per index, before a bulk rebuild.
func (cs *ComplexSearcher) ConfigureIndex() error {
	index := cs.client.Index(cs.indexName)

	settings := &meilisearch.Settings{
		SearchableAttributes: []string{"normalized_name", "ascii_name"},
		FilterableAttributes: []string{"subdistrict"},
		RankingRules: []string{
			"words",
			"typo",
			"proximity",
			"attribute",
			"exactness",
		},
	}

	task, err := index.UpdateSettings(settings)
	if err != nil {
		return fmt.Errorf("update index settings: %w", err)
	}

	deadline := time.Now().Add(cs.timeout)
	for {
		info, err := cs.client.GetTask(task.TaskUID)
		if err != nil {
			return fmt.Errorf("poll settings task: %w", err)
		}
		switch info.Status {
		case meilisearch.TaskStatusSucceeded:
			return nil
		case meilisearch.TaskStatusFailed:
			return fmt.Errorf("settings task failed: %s", info.Error.Message)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("settings task %d not settled after %s", task.TaskUID, cs.timeout)
		}
		time.Sleep(time.Second)
	}
}

// IndexBatch adds or refreshes many complexes in one request. Used by
// the full reindex tool; per-record ingestion uses IndexComplex.
func (cs *ComplexSearcher) IndexBatch(complexes []*models.CanonicalComplex) error {
	if len(complexes) == 0 {
		return nil
	}
	docs := make([]complexDoc, 0, len(complexes))
	for _, c := range complexes {
		doc := complexDoc{
			ID:             c.ID,
			NormalizedName: c.NormalizedName,
			AsciiName:      c.AsciiName,
		}
		if c.Region.Subdistrict != nil {
			doc.Subdistrict = *c.Region.Subdistrict
		}
		docs = append(docs, doc)
	}

	index := cs.client.Index(cs.indexName)
	if _, err := index.AddDocuments(docs, "id"); err != nil {
		return fmt.Errorf("index batch of %d: %w", len(docs), err)
	}
	return nil
}

// RemoveComplex drops a retired complex from the index.
func (cs *ComplexSearcher) RemoveComplex(id string) error {
	index := cs.client.Index(cs.indexName)
	if _, err := index.DeleteDocument(id); err != nil {
		return fmt.Errorf("remove complex %s from index: %w", id, err)
	}
	return nil
}

// SearchIDs returns ids of complexes whose indexed names match the
// query, tolerating typos the exact store index would miss.
func (cs *ComplexSearcher) SearchIDs(query string, limit int) ([]string, error) {
	index := cs.client.Index(cs.indexName)

	result, err := index.Search(query, &meilisearch.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("search complexes: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := hitMap["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// SearchCandidateFinder layers Meilisearch retrieval on top of a base
// finder: the union of both candidate sets, still bounded.
type SearchCandidateFinder struct {
	base     matcher.CandidateFinder
	searcher *ComplexSearcher
	store    store.Store
	logger   *zap.Logger
	limit    int
}

// NewSearchCandidateFinder wraps a base finder with index retrieval.
func NewSearchCandidateFinder(base matcher.CandidateFinder, searcher *ComplexSearcher, st store.Store, limit int, logger *zap.Logger) *SearchCandidateFinder {
	return &SearchCandidateFinder{
		base:     base,
		searcher: searcher,
		store:    st,
		logger:   logger,
		limit:    limit,
	}
}

func (f *SearchCandidateFinder) FindCandidates(ctx context.Context, in matcher.MatchInput, coords *models.Coordinates) ([]*models.CanonicalComplex, error) {
	out, err := f.base.FindCandidates(ctx, in, coords)
	if err != nil {
		return nil, err
	}
	if in.NormalizedName == "" || len(out) >= f.limit {
		return out, nil
	}

	ids, err := f.searcher.SearchIDs(in.NormalizedName, f.limit)
	if err != nil {
		// Degraded recall only; the store finder already contributed.
		f.logger.Warn("meilisearch retrieval failed", zap.Error(err))
		return out, nil
	}

	seen := make(map[string]bool, len(out))
	for _, c := range out {
		seen[c.ID] = true
	}
	for _, id := range ids {
		if len(out) >= f.limit {
			break
		}
		if seen[id] {
			continue
		}
		c, err := f.store.GetComplex(ctx, id)
		if err != nil {
			continue // index lag; the document may be retired
		}
		seen[id] = true
		out = append(out, c)
	}
	return out, nil
}

var _ matcher.CandidateFinder = (*SearchCandidateFinder)(nil)
