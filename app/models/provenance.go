package models

import "time"

// MatchMethod identifies how a source observation was bound to its
// canonical complex.
type MatchMethod string

const (
	MatchMethodExactName  MatchMethod = "exact_name"
	MatchMethodFuzzyName  MatchMethod = "fuzzy_name"
	MatchMethodRegion     MatchMethod = "region_based"
	MatchMethodNewComplex MatchMethod = "new_complex"
)

// ProvenanceMapping is the audit record linking one source observation
// to the canonical complex it contributed to. Unique on
// (canonical_id, source_type, source_id); lookups by
// (source_type, source_id) let a re-run recognize "already mapped".
type ProvenanceMapping struct {
	CanonicalID string      `bson:"canonical_id" json:"canonical_id"`
	SourceType  string      `bson:"source_type" json:"source_type"`
	SourceID    string      `bson:"source_id" json:"source_id"`
	MatchMethod MatchMethod `bson:"match_method" json:"match_method"`
	Confidence  float64     `bson:"confidence" json:"confidence"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
}

// Key returns the source-side lookup key.
func (pm *ProvenanceMapping) Key() string {
	return pm.SourceType + ":" + pm.SourceID
}
