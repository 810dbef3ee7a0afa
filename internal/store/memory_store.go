package store

import (
	"context"
	"sort"
	"sync"

	"github.com/complex-registry/app/models"
)

// MemoryStore is an index-backed in-memory Store. It backs service
// tests and small one-off runs; semantics mirror MongoStore, including
// the provenance unique constraint and the atomic resolution unit.
type MemoryStore struct {
	mu sync.RWMutex

	coordPrecision int

	complexes  map[string]*models.CanonicalComplex
	provenance map[string]*models.ProvenanceMapping // sourceType:sourceID
	txns       map[string]*models.TransactionRecord
	listings   map[string]*models.ListingRecord // sourceType:listingID
	quarantine []*models.QuarantineRecord

	byName  map[string][]string // normalized name → ids
	byCoord map[string][]string // coord key → ids

	dedupCheckpoint string
}

// NewMemoryStore builds an empty store. coordPrecision matches the
// dedup grouping precision so the coordinate index and the dedup pass
// agree on keys.
func NewMemoryStore(coordPrecision int) *MemoryStore {
	return &MemoryStore{
		coordPrecision: coordPrecision,
		complexes:      make(map[string]*models.CanonicalComplex),
		provenance:     make(map[string]*models.ProvenanceMapping),
		txns:           make(map[string]*models.TransactionRecord),
		listings:       make(map[string]*models.ListingRecord),
		byName:         make(map[string][]string),
		byCoord:        make(map[string][]string),
	}
}

func (ms *MemoryStore) GetComplex(ctx context.Context, id string) (*models.CanonicalComplex, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	c, ok := ms.complexes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (ms *MemoryStore) FindByNormalizedName(ctx context.Context, normalizedName string, limit int) ([]*models.CanonicalComplex, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.collect(ms.byName[normalizedName], limit), nil
}

func (ms *MemoryStore) FindByRegion(ctx context.Context, province, city string, limit int) ([]*models.CanonicalComplex, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := make([]string, 0)
	for id, c := range ms.complexes {
		if province != "" && (c.Region.Province == nil || *c.Region.Province != province) {
			continue
		}
		if city != "" && (c.Region.City == nil || *c.Region.City != city) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ms.collect(ids, limit), nil
}

func (ms *MemoryStore) FindByCoordKey(ctx context.Context, coordKey string, limit int) ([]*models.CanonicalComplex, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.collect(ms.byCoord[coordKey], limit), nil
}

func (ms *MemoryStore) ListComplexes(ctx context.Context, afterID string, limit int) ([]*models.CanonicalComplex, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := make([]string, 0, len(ms.complexes))
	for id := range ms.complexes {
		if afterID == "" || id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ms.collect(ids, limit), nil
}

func (ms *MemoryStore) UpdateComplex(ctx context.Context, c *models.CanonicalComplex) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	old, ok := ms.complexes[c.ID]
	if !ok {
		return ErrNotFound
	}
	ms.unindex(old)
	cp := *c
	ms.complexes[c.ID] = &cp
	ms.index(&cp)
	return nil
}

func (ms *MemoryStore) DeleteComplex(ctx context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c, ok := ms.complexes[id]
	if !ok {
		return ErrNotFound
	}
	ms.unindex(c)
	delete(ms.complexes, id)
	return nil
}

func (ms *MemoryStore) GetProvenanceBySource(ctx context.Context, sourceType, sourceID string) (*models.ProvenanceMapping, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	pm, ok := ms.provenance[sourceType+":"+sourceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pm
	return &cp, nil
}

func (ms *MemoryStore) ApplyResolution(ctx context.Context, c *models.CanonicalComplex, prov *models.ProvenanceMapping, created bool) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.provenance[prov.Key()]; exists {
		return ErrDuplicateProvenance
	}

	if created {
		cp := *c
		ms.complexes[c.ID] = &cp
		ms.index(&cp)
	} else {
		old, ok := ms.complexes[c.ID]
		if !ok {
			return ErrNotFound
		}
		ms.unindex(old)
		cp := *c
		ms.complexes[c.ID] = &cp
		ms.index(&cp)
	}

	pp := *prov
	ms.provenance[prov.Key()] = &pp
	return nil
}

func (ms *MemoryStore) InsertTransaction(ctx context.Context, tr *models.TransactionRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.txns[tr.ID]; exists {
		// Same source observation re-attached on a retry.
		return nil
	}
	cp := *tr
	ms.txns[tr.ID] = &cp
	return nil
}

func (ms *MemoryStore) UpsertListing(ctx context.Context, l *models.ListingRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cp := *l
	ms.listings[l.SourceType+":"+l.ListingID] = &cp
	return nil
}

func (ms *MemoryStore) CountTransactions(ctx context.Context, complexID string) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var n int64
	for _, tr := range ms.txns {
		if tr.ComplexID == complexID {
			n++
		}
	}
	return n, nil
}

func (ms *MemoryStore) ListProvenanceByComplex(ctx context.Context, complexID string) ([]*models.ProvenanceMapping, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]*models.ProvenanceMapping, 0)
	for _, pm := range ms.provenance {
		if pm.CanonicalID == complexID {
			cp := *pm
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (ms *MemoryStore) RepointChildren(ctx context.Context, fromID, toID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, tr := range ms.txns {
		if tr.ComplexID == fromID {
			tr.ComplexID = toID
		}
	}
	for _, l := range ms.listings {
		if l.ComplexID == fromID {
			l.ComplexID = toID
		}
	}
	for _, pm := range ms.provenance {
		if pm.CanonicalID == fromID {
			pm.CanonicalID = toID
		}
	}
	return nil
}

func (ms *MemoryStore) InsertQuarantine(ctx context.Context, q *models.QuarantineRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cp := *q
	ms.quarantine = append(ms.quarantine, &cp)
	return nil
}

func (ms *MemoryStore) GetDedupCheckpoint(ctx context.Context) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.dedupCheckpoint, nil
}

func (ms *MemoryStore) SetDedupCheckpoint(ctx context.Context, groupKey string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.dedupCheckpoint = groupKey
	return nil
}

func (ms *MemoryStore) ClearDedupCheckpoint(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.dedupCheckpoint = ""
	return nil
}

func (ms *MemoryStore) Close(ctx context.Context) error { return nil }

// TransactionsFor returns a complex's transactions; test helper.
func (ms *MemoryStore) TransactionsFor(complexID string) []*models.TransactionRecord {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]*models.TransactionRecord, 0)
	for _, tr := range ms.txns {
		if tr.ComplexID == complexID {
			cp := *tr
			out = append(out, &cp)
		}
	}
	return out
}

// QuarantineCount returns the number of quarantined records; test helper.
func (ms *MemoryStore) QuarantineCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.quarantine)
}

// ComplexCount returns the number of live complexes; test helper.
func (ms *MemoryStore) ComplexCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.complexes)
}

func (ms *MemoryStore) collect(ids []string, limit int) []*models.CanonicalComplex {
	out := make([]*models.CanonicalComplex, 0, len(ids))
	for _, id := range ids {
		c, ok := ms.complexes[id]
		if !ok {
			continue
		}
		cp := *c
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (ms *MemoryStore) index(c *models.CanonicalComplex) {
	if c.NormalizedName != "" {
		ms.byName[c.NormalizedName] = append(ms.byName[c.NormalizedName], c.ID)
		sort.Strings(ms.byName[c.NormalizedName])
	}
	if key := c.CoordKey(ms.coordPrecision); key != "" {
		ms.byCoord[key] = append(ms.byCoord[key], c.ID)
		sort.Strings(ms.byCoord[key])
	}
}

func (ms *MemoryStore) unindex(c *models.CanonicalComplex) {
	if c.NormalizedName != "" {
		ms.byName[c.NormalizedName] = remove(ms.byName[c.NormalizedName], c.ID)
	}
	if key := c.CoordKey(ms.coordPrecision); key != "" {
		ms.byCoord[key] = remove(ms.byCoord[key], c.ID)
	}
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
