package matcher

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/complex-registry/app/config"
	"github.com/complex-registry/app/models"
)

func sp(s string) *string { return &s }
func ip(i int) *int       { return &i }

func region(province, city, subdistrict string) models.Region {
	r := models.Region{}
	if province != "" {
		r.Province = sp(province)
	}
	if city != "" {
		r.City = sp(city)
	}
	if subdistrict != "" {
		r.Subdistrict = sp(subdistrict)
	}
	return r
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abc", "abd", 1 - 1.0/3},
		{"abc", "", 0},
		{"정든한진 6", "정든한진6", 1 - 1.0/6},
	}
	for _, tc := range cases {
		got := Similarity(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestExactNameStrategy(t *testing.T) {
	s := ExactNameStrategy{}

	src := MatchInput{NormalizedName: "반포자이", Region: region("서울특별시", "서초구", "반포동")}
	cand := &models.CanonicalComplex{NormalizedName: "반포자이", Region: region("서울특별시", "서초구", "반포동")}

	conf, ok := s.Evaluate(src, cand)
	if !ok || conf != 1.0 {
		t.Fatalf("identical names should qualify at 1.0, got (%v, %v)", conf, ok)
	}

	// Same name in a different subdistrict is a different complex.
	other := &models.CanonicalComplex{NormalizedName: "반포자이", Region: region("서울특별시", "서초구", "잠원동")}
	if _, ok := s.Evaluate(src, other); ok {
		t.Fatal("region conflict should disqualify an exact name match")
	}

	// Unknown candidate region is weak evidence, not a veto.
	unknown := &models.CanonicalComplex{NormalizedName: "반포자이"}
	if _, ok := s.Evaluate(src, unknown); !ok {
		t.Fatal("nil candidate region should not disqualify")
	}

	if _, ok := s.Evaluate(MatchInput{}, cand); ok {
		t.Fatal("empty source name must fail closed")
	}
}

func TestFuzzyNameStrategy(t *testing.T) {
	s := FuzzyNameStrategy{Threshold: 0.8}

	src := MatchInput{NormalizedName: "정든한진 6", Region: region("", "", "정자동")}
	cand := &models.CanonicalComplex{NormalizedName: "정든한진6", Region: region("", "", "정자동")}

	conf, ok := s.Evaluate(src, cand)
	if !ok {
		t.Fatal("near-identical names above threshold should qualify")
	}
	if math.Abs(conf-(1-1.0/6)) > 1e-9 {
		t.Errorf("confidence = %v, want %v", conf, 1-1.0/6)
	}

	// Exactly at the threshold is excluded.
	at := FuzzyNameStrategy{Threshold: 0.8}
	if _, ok := at.Evaluate(
		MatchInput{NormalizedName: "abcde"},
		&models.CanonicalComplex{NormalizedName: "abcdx"},
	); ok {
		t.Fatal("similarity equal to threshold must not qualify")
	}

	conflict := &models.CanonicalComplex{NormalizedName: "정든한진6", Region: region("", "", "서현동")}
	if _, ok := s.Evaluate(src, conflict); ok {
		t.Fatal("region conflict should disqualify a fuzzy match")
	}
}

func TestRegionStrategy(t *testing.T) {
	s := RegionStrategy{
		Threshold: 0.7,
		Weights: config.RegionWeights{
			Province:    0.3,
			City:        0.4,
			Subdistrict: 0.3,
			YearBonus:   0.1,
			YearWindow:  2,
		},
	}

	full := region("경기도", "분당구", "정자동")

	// Province + city alone lands exactly on the threshold: excluded.
	cand := &models.CanonicalComplex{Region: region("경기도", "분당구", "")}
	if _, ok := s.Evaluate(MatchInput{Region: full}, cand); ok {
		t.Fatal("score equal to threshold must not qualify")
	}

	// The year bonus lifts it over.
	cand.CompletionYear = ip(1995)
	conf, ok := s.Evaluate(MatchInput{Region: full, CompletionYear: ip(1996)}, cand)
	if !ok {
		t.Fatal("province + city + year bonus should qualify")
	}
	if math.Abs(conf-0.8) > 1e-9 {
		t.Errorf("confidence = %v, want 0.8", conf)
	}

	// Outside the year window the bonus does not apply.
	if _, ok := s.Evaluate(MatchInput{Region: full, CompletionYear: ip(1999)}, cand); ok {
		t.Fatal("year outside window must not earn the bonus")
	}

	// Full overlap plus bonus is capped at 1.0.
	fullCand := &models.CanonicalComplex{Region: full, CompletionYear: ip(1995)}
	conf, ok = s.Evaluate(MatchInput{Region: full, CompletionYear: ip(1995)}, fullCand)
	if !ok || conf != 1.0 {
		t.Fatalf("full overlap should cap at 1.0, got (%v, %v)", conf, ok)
	}
}

func TestPipelinePrecedence(t *testing.T) {
	p := NewPipeline(config.Default(), zap.NewNop())

	exact := &models.CanonicalComplex{ID: "b", NormalizedName: "반포자이", Region: region("서울특별시", "서초구", "반포동")}
	fuzzy := &models.CanonicalComplex{ID: "a", NormalizedName: "반포자이 1", Region: region("서울특별시", "서초구", "반포동")}

	src := MatchInput{NormalizedName: "반포자이", Region: region("서울특별시", "서초구", "반포동")}
	d := p.Match(src, []*models.CanonicalComplex{fuzzy, exact})
	if d == nil {
		t.Fatal("expected a decision")
	}
	if d.Method != models.MatchMethodExactName || d.ComplexID != "b" {
		t.Errorf("exact strategy should decide before fuzzy, got %+v", d)
	}
	if d.Confidence != 1.0 {
		t.Errorf("exact confidence = %v, want 1.0", d.Confidence)
	}
}

func TestPipelineTieBreak(t *testing.T) {
	p := NewPipeline(config.Default(), zap.NewNop())

	src := MatchInput{NormalizedName: "반포자이"}
	c1 := &models.CanonicalComplex{ID: "2b", NormalizedName: "반포자이"}
	c2 := &models.CanonicalComplex{ID: "1a", NormalizedName: "반포자이"}

	d := p.Match(src, []*models.CanonicalComplex{c1, c2})
	if d == nil || d.ComplexID != "1a" {
		t.Fatalf("equal confidence should break to the lowest id, got %+v", d)
	}
}

func TestPipelineNoMatch(t *testing.T) {
	p := NewPipeline(config.Default(), zap.NewNop())

	src := MatchInput{NormalizedName: "완전히 다른 이름", Region: region("경기도", "", "")}
	cand := &models.CanonicalComplex{ID: "x", NormalizedName: "반포자이", Region: region("서울특별시", "", "")}

	if d := p.Match(src, []*models.CanonicalComplex{cand}); d != nil {
		t.Fatalf("expected no decision, got %+v", d)
	}

	if d := p.Match(src, nil); d != nil {
		t.Fatalf("no candidates must mean no decision, got %+v", d)
	}
}
