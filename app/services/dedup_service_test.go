package services

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/complex-registry/app/config"
	"github.com/complex-registry/app/models"
	"github.com/complex-registry/internal/store"
)

func newTestDedup(st store.Store) *DedupService {
	return NewDedupService(st, nil, nil, config.Default().Dedup, zap.NewNop())
}

func seedEntity(t *testing.T, st store.Store, c *models.CanonicalComplex) {
	t.Helper()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	prov := &models.ProvenanceMapping{
		CanonicalID: c.ID,
		SourceType:  models.SourceGovRegistry,
		SourceID:    "seed-" + c.ID,
		MatchMethod: models.MatchMethodNewComplex,
		Confidence:  1.0,
	}
	if err := st.ApplyResolution(context.Background(), c, prov, true); err != nil {
		t.Fatalf("seed %s: %v", c.ID, err)
	}
}

func TestDedupMergesCoordinateGroup(t *testing.T) {
	st := store.NewMemoryStore(config.Default().Dedup.CoordPrecision)
	ctx := context.Background()

	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	// Same physical complex ingested twice before the name strategies
	// could see through the spelling gap.
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "aaa",
		Name:           "정든한진6차",
		NormalizedName: "정든한진6",
		Region:         models.Region{Subdistrict: sp("정자동")},
		Coordinates:    &models.Coordinates{Latitude: 37.3654, Longitude: 127.1089},
		CreatedAt:      older,
	})
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "bbb",
		Name:           "정든 한진 6",
		NormalizedName: "정든 한진 6",
		Coordinates:    &models.Coordinates{Latitude: 37.36542, Longitude: 127.10891},
		CompletionYear: ip(1995),
		CreatedAt:      newer,
	})

	// Same cell, different complex: name floor must protect it.
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "ccc",
		Name:           "상록우성",
		NormalizedName: "상록우성",
		Coordinates:    &models.Coordinates{Latitude: 37.36539, Longitude: 127.10888},
		CreatedAt:      newer,
	})

	if err := st.InsertTransaction(ctx, models.NewTransactionRecord("bbb", models.SourceGovRegistry, "t-1", &models.TransactionData{Amount: i64p(90000)})); err != nil {
		t.Fatal(err)
	}

	report, err := newTestDedup(st).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Retired != 1 {
		t.Fatalf("retired = %d, want 1", report.Retired)
	}

	// Survivor is the earlier-created entry; it absorbs the loser's
	// fields and children.
	survivor, err := st.GetComplex(ctx, "aaa")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetComplex(ctx, "bbb"); err == nil {
		t.Fatal("loser entity still present")
	}
	if survivor.CompletionYear == nil || *survivor.CompletionYear != 1995 {
		t.Error("survivor did not absorb the loser's completion year")
	}
	if got := len(st.TransactionsFor("aaa")); got != 1 {
		t.Errorf("survivor transactions = %d, want 1", got)
	}
	if got := len(st.TransactionsFor("bbb")); got != 0 {
		t.Errorf("orphaned transactions on retired id: %d", got)
	}

	if _, err := st.GetComplex(ctx, "ccc"); err != nil {
		t.Fatal("differently named neighbor was wrongly retired")
	}
}

func TestDedupMergesNameGroupWithoutCoordinates(t *testing.T) {
	st := store.NewMemoryStore(config.Default().Dedup.CoordPrecision)
	ctx := context.Background()

	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "aaa",
		NormalizedName: "래미안",
		Region:         models.Region{Province: sp("서울특별시"), Subdistrict: sp("잠실동")},
	})
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "bbb",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("잠실동")},
	})

	// Same name, different subdistrict: not a duplicate.
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "ccc",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("대치동")},
	})

	report, err := newTestDedup(st).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Retired != 1 {
		t.Fatalf("retired = %d, want 1", report.Retired)
	}
	if _, err := st.GetComplex(ctx, "ccc"); err != nil {
		t.Fatal("entity in another subdistrict was wrongly merged")
	}
}

func TestDedupSurvivorPrefersCoordinatesAndRegion(t *testing.T) {
	st := store.NewMemoryStore(config.Default().Dedup.CoordPrecision)
	ctx := context.Background()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// The older entry lacks coordinates; the newer one has them and
	// must win survivorship anyway.
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "aaa",
		NormalizedName: "반포자이",
		Region:         models.Region{Subdistrict: sp("반포동")},
		CreatedAt:      older,
	})
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "bbb",
		NormalizedName: "반포자이",
		Region:         models.Region{Subdistrict: sp("반포동")},
		Coordinates:    &models.Coordinates{Latitude: 37.5040, Longitude: 127.0045},
		CreatedAt:      older.Add(time.Hour),
	})

	if _, err := newTestDedup(st).Run(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := st.GetComplex(ctx, "bbb"); err != nil {
		t.Fatal("coordinate-bearing entry should survive")
	}
	if _, err := st.GetComplex(ctx, "aaa"); err == nil {
		t.Fatal("coordinate-less entry should be retired")
	}
}

func TestDedupIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore(config.Default().Dedup.CoordPrecision)
	ctx := context.Background()

	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "aaa",
		NormalizedName: "반포자이",
		Region:         models.Region{Subdistrict: sp("반포동")},
	})
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "bbb",
		NormalizedName: "반포자이",
		Region:         models.Region{Subdistrict: sp("반포동")},
	})

	d := newTestDedup(st)
	first, err := d.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Retired != 1 {
		t.Fatalf("first pass retired = %d, want 1", first.Retired)
	}

	second, err := d.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Retired != 0 || second.Merged != 0 {
		t.Fatalf("second pass must be a no-op, got %+v", second)
	}
}

func TestDedupFlagsIDTieBreak(t *testing.T) {
	st := store.NewMemoryStore(config.Default().Dedup.CoordPrecision)
	ctx := context.Background()

	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	// Indistinguishable on every survivorship criterion; only the id
	// can decide, and that decision must be flagged.
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "aaa",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("잠실동")},
		CreatedAt:      created,
	})
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "bbb",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("잠실동")},
		CreatedAt:      created,
	})

	report, err := newTestDedup(st).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.TieBreaks != 1 {
		t.Errorf("tie breaks = %d, want 1", report.TieBreaks)
	}
	if _, err := st.GetComplex(ctx, "aaa"); err != nil {
		t.Error("lowest id should survive a full tie")
	}
}

func TestDedupSurvivorOnMeritIsNotFlagged(t *testing.T) {
	st := store.NewMemoryStore(config.Default().Dedup.CoordPrecision)
	ctx := context.Background()

	older := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "aaa",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("잠실동")},
		CreatedAt:      older,
	})
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "bbb",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("잠실동")},
		CreatedAt:      older.Add(time.Hour),
	})

	report, err := newTestDedup(st).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Retired != 1 {
		t.Fatalf("retired = %d, want 1", report.Retired)
	}
	if report.TieBreaks != 0 {
		t.Errorf("creation-time decision wrongly flagged: tie breaks = %d", report.TieBreaks)
	}
}

func TestDedupRepointsResolveCache(t *testing.T) {
	st := store.NewMemoryStore(config.Default().Dedup.CoordPrecision)
	ctx := context.Background()

	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "aaa",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("잠실동")},
	})
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "bbb",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("잠실동")},
	})

	cache, err := NewLRUResolveCache(16)
	if err != nil {
		t.Fatal(err)
	}
	// Warm entries as a prior ingest run would have left them.
	_ = cache.Set(ctx, models.SourceGovRegistry+":seed-aaa", "aaa")
	_ = cache.Set(ctx, models.SourceGovRegistry+":seed-bbb", "bbb")

	d := NewDedupService(st, nil, cache, config.Default().Dedup, zap.NewNop())
	if _, err := d.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// The loser's cached resolution must now point at the survivor,
	// never at the deleted id.
	id, ok, err := cache.Get(ctx, models.SourceGovRegistry+":seed-bbb")
	if err != nil || !ok {
		t.Fatalf("cache entry lost: ok=%v err=%v", ok, err)
	}
	if id != "aaa" {
		t.Errorf("cached resolution = %s, want aaa", id)
	}
}

func TestDedupRepointsProvenance(t *testing.T) {
	st := store.NewMemoryStore(config.Default().Dedup.CoordPrecision)
	ctx := context.Background()

	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "aaa",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("잠실동")},
	})
	seedEntity(t, st, &models.CanonicalComplex{
		ID:             "bbb",
		NormalizedName: "래미안",
		Region:         models.Region{Subdistrict: sp("잠실동")},
	})

	if _, err := newTestDedup(st).Run(ctx); err != nil {
		t.Fatal(err)
	}

	// The loser's source observation must now resolve to the survivor,
	// keeping later re-ingestions idempotent.
	pm, err := st.GetProvenanceBySource(ctx, models.SourceGovRegistry, "seed-bbb")
	if err != nil {
		t.Fatal(err)
	}
	if pm.CanonicalID != "aaa" {
		t.Errorf("provenance points at %s, want aaa", pm.CanonicalID)
	}
}
