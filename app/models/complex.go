package models

import (
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Region holds the administrative hierarchy a complex belongs to.
// Each level is optional: extraction is best-effort and a level stays
// nil until some source resolves it.
type Region struct {
	Province    *string `bson:"province,omitempty" json:"province,omitempty"`
	City        *string `bson:"city,omitempty" json:"city,omitempty"`
	Subdistrict *string `bson:"subdistrict,omitempty" json:"subdistrict,omitempty"`
}

// IsEmpty reports whether no level of the hierarchy is known.
func (r Region) IsEmpty() bool {
	return r.Province == nil && r.City == nil && r.Subdistrict == nil
}

// Coordinates is a WGS84 point. Only values inside the national
// bounding range are ever stored; see parser.ValidCoordinates.
type Coordinates struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// CanonicalComplex is the single deduplicated record representing one
// real apartment complex. It is created exactly once and afterwards only
// enriched (fill-if-null) or retired into a survivor by the dedup pass.
type CanonicalComplex struct {
	ID             string       `bson:"_id" json:"id"`
	Name           string       `bson:"name" json:"name"`
	NormalizedName string       `bson:"normalized_name" json:"normalized_name"`
	AsciiName      string       `bson:"ascii_name" json:"ascii_name"`
	Region         Region       `bson:"region" json:"region"`
	Coordinates    *Coordinates `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
	CompletionYear *int         `bson:"completion_year,omitempty" json:"completion_year,omitempty"`
	TotalUnits     *int         `bson:"total_units,omitempty" json:"total_units,omitempty"`
	TotalBuildings *int         `bson:"total_buildings,omitempty" json:"total_buildings,omitempty"`

	// CrawlingPriority is derived from observed transaction volume and
	// only ever recomputed, never set by sources.
	CrawlingPriority int `bson:"crawling_priority" json:"crawling_priority"`

	// DataSources is the set of source types that have contributed data.
	DataSources []string `bson:"data_sources" json:"data_sources"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NewComplexID returns a fresh canonical id. ObjectID hex strings are
// time-prefixed, so lexicographic order on ids follows creation order;
// the matcher's earliest-created tie-break relies on this.
func NewComplexID() string {
	return primitive.NewObjectID().Hex()
}

// HasValidCoordinates reports whether the complex carries a stored
// coordinate pair. Stored coordinates are always valid; out-of-range
// values are nulled at ingestion time.
func (c *CanonicalComplex) HasValidCoordinates() bool {
	return c.Coordinates != nil
}

// CoordKey returns the rounded coordinate grouping key used by the
// dedup pass and the coordinate candidate index.
func (c *CanonicalComplex) CoordKey(precision int) string {
	if c.Coordinates == nil {
		return ""
	}
	return CoordKey(c.Coordinates.Latitude, c.Coordinates.Longitude, precision)
}

// CoordKey rounds a coordinate pair to the given decimal precision and
// renders it as a stable string key.
func CoordKey(lat, lng float64, precision int) string {
	f := math.Pow10(precision)
	return fmt.Sprintf("%.*f,%.*f", precision, math.Round(lat*f)/f, precision, math.Round(lng*f)/f)
}

// AddDataSource appends a source type tag if not already present.
func (c *CanonicalComplex) AddDataSource(sourceType string) {
	for _, s := range c.DataSources {
		if s == sourceType {
			return
		}
	}
	c.DataSources = append(c.DataSources, sourceType)
}

// HasRegion reports whether any level of the hierarchy is known.
// Used by dedup survivor selection.
func (c *CanonicalComplex) HasRegion() bool {
	return !c.Region.IsEmpty()
}

// PriorityForVolume maps observed transaction volume to a crawling
// priority tier. Monotonic: more transactions never lowers the tier.
func PriorityForVolume(transactions int64) int {
	switch {
	case transactions >= 100:
		return 10
	case transactions >= 50:
		return 8
	case transactions >= 20:
		return 6
	case transactions >= 10:
		return 4
	case transactions >= 1:
		return 2
	default:
		return 1
	}
}
