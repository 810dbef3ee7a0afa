package store

import (
	"context"
	"errors"

	"github.com/complex-registry/app/models"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateProvenance is returned when a provenance insert hits
	// the (source_type, source_id) unique constraint. Callers treat it
	// as "already mapped", not as a failure.
	ErrDuplicateProvenance = errors.New("store: provenance mapping already exists")
)

// Store is the canonical store consumed and produced by the matching
// engine: complexes, provenance mappings, transactions, listings, and
// the operational bookkeeping around batch runs.
//
// Reads may run concurrently with writes to other entities; callers
// serialize mutations to a single complex themselves (the merge
// service holds a per-entity lock).
type Store interface {
	// GetComplex returns one canonical complex or ErrNotFound.
	GetComplex(ctx context.Context, id string) (*models.CanonicalComplex, error)

	// FindByNormalizedName returns complexes whose normalized name
	// matches exactly, via index.
	FindByNormalizedName(ctx context.Context, normalizedName string, limit int) ([]*models.CanonicalComplex, error)

	// FindByRegion returns complexes scoped to a (province, city)
	// pair; empty strings match any value at that level.
	FindByRegion(ctx context.Context, province, city string, limit int) ([]*models.CanonicalComplex, error)

	// FindByCoordKey returns complexes sharing a rounded coordinate
	// key.
	FindByCoordKey(ctx context.Context, coordKey string, limit int) ([]*models.CanonicalComplex, error)

	// ListComplexes pages through all complexes in id order, starting
	// after the given id (empty string starts from the beginning).
	ListComplexes(ctx context.Context, afterID string, limit int) ([]*models.CanonicalComplex, error)

	// UpdateComplex persists a mutated complex.
	UpdateComplex(ctx context.Context, c *models.CanonicalComplex) error

	// DeleteComplex removes a retired complex.
	DeleteComplex(ctx context.Context, id string) error

	// GetProvenanceBySource returns the mapping for one source
	// observation, or ErrNotFound.
	GetProvenanceBySource(ctx context.Context, sourceType, sourceID string) (*models.ProvenanceMapping, error)

	// ListProvenanceByComplex returns every mapping bound to one
	// canonical complex. The dedup pass uses it to re-point cached
	// resolutions when the complex is retired.
	ListProvenanceByComplex(ctx context.Context, complexID string) ([]*models.ProvenanceMapping, error)

	// ApplyResolution persists a canonical mutation together with its
	// provenance mapping as one logical unit: either both stick or
	// neither does. created distinguishes a fresh insert from an
	// enrichment of an existing complex.
	ApplyResolution(ctx context.Context, c *models.CanonicalComplex, prov *models.ProvenanceMapping, created bool) error

	// InsertTransaction appends an immutable transaction event. A
	// second insert under the same id is a no-op, so a retried
	// attachment never duplicates the event.
	InsertTransaction(ctx context.Context, tr *models.TransactionRecord) error

	// UpsertListing inserts or overwrites a listing by
	// (source_type, listing_id).
	UpsertListing(ctx context.Context, l *models.ListingRecord) error

	// CountTransactions returns the transaction volume of a complex,
	// feeding the crawling-priority recompute.
	CountTransactions(ctx context.Context, complexID string) (int64, error)

	// RepointChildren moves all transactions, listings and provenance
	// mappings from a retired complex to its survivor.
	RepointChildren(ctx context.Context, fromID, toID string) error

	// InsertQuarantine records a source record that kept failing.
	InsertQuarantine(ctx context.Context, q *models.QuarantineRecord) error

	// Dedup checkpoint: the last fully processed group key, so a
	// restarted pass does not redo completed groups.
	GetDedupCheckpoint(ctx context.Context) (string, error)
	SetDedupCheckpoint(ctx context.Context, groupKey string) error
	ClearDedupCheckpoint(ctx context.Context) error

	Close(ctx context.Context) error
}
