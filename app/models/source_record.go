package models

import "time"

// Source type tags. Every contributing extractor is identified by one
// of these; DataSources on a canonical complex is a set of them.
const (
	SourceGovRegistry = "gov_registry"
	SourceCrawler     = "crawler"
	SourceSnapshot    = "legacy_snapshot"
)

// SourceRecord is one observation of a complex as reported by one
// external source, already parsed into structured fields by the
// extractor that produced it.
type SourceRecord struct {
	SourceType string `bson:"source_type" json:"source_type"`
	SourceID   string `bson:"source_id" json:"source_id"`

	Name       string `bson:"name" json:"name"`
	RawAddress string `bson:"raw_address" json:"raw_address"`

	Coordinates    *Coordinates `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
	CompletionYear *int         `bson:"completion_year,omitempty" json:"completion_year,omitempty"`
	TotalUnits     *int         `bson:"total_units,omitempty" json:"total_units,omitempty"`
	TotalBuildings *int         `bson:"total_buildings,omitempty" json:"total_buildings,omitempty"`

	// Transaction carries the sale/lease event attached to a
	// government-registry row. Nil for other sources.
	Transaction *TransactionData `bson:"transaction,omitempty" json:"transaction,omitempty"`

	// Listing carries the advertised-unit payload attached to a
	// crawler row. Nil for other sources.
	Listing *ListingData `bson:"listing,omitempty" json:"listing,omitempty"`
}

// Key returns the provenance lookup key for this observation.
func (sr *SourceRecord) Key() string {
	return sr.SourceType + ":" + sr.SourceID
}

// TransactionData is the transaction payload of a registry row before
// it is bound to a canonical complex.
type TransactionData struct {
	Amount        *int64     `bson:"amount,omitempty" json:"amount,omitempty"` // 만원
	DealDate      *time.Time `bson:"deal_date,omitempty" json:"deal_date,omitempty"`
	ExclusiveArea *float64   `bson:"exclusive_area,omitempty" json:"exclusive_area,omitempty"`
	Floor         *int       `bson:"floor,omitempty" json:"floor,omitempty"`
}

// ListingData is the advertised-unit payload of a crawler row before
// it is bound to a canonical complex.
type ListingData struct {
	ListingID     string   `bson:"listing_id" json:"listing_id"`
	DealType      string   `bson:"deal_type" json:"deal_type"`
	Price         *int64   `bson:"price,omitempty" json:"price,omitempty"`     // 매매/전세 amount, 만원
	Deposit       *int64   `bson:"deposit,omitempty" json:"deposit,omitempty"` // 월세 deposit, 만원
	MonthlyRent   *int64   `bson:"monthly_rent,omitempty" json:"monthly_rent,omitempty"`
	ExclusiveArea *float64 `bson:"exclusive_area,omitempty" json:"exclusive_area,omitempty"`
	Floor         *int     `bson:"floor,omitempty" json:"floor,omitempty"`
}
