package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Listing deal types, normalized from source text by the boundary
// parsers (매매/전세/월세).
const (
	DealTypeSale        = "sale"
	DealTypeJeonse      = "jeonse"
	DealTypeMonthlyRent = "monthly_rent"
)

// Listing status. Active listings are what the crawler currently sees;
// stale ones have dropped out of the crawl and are kept distinguishable
// from historical transactions.
const (
	ListingStatusActive = "active"
	ListingStatusStale  = "stale"
)

// ListingRecord is a currently-advertised unit bound to exactly one
// canonical complex. Crawler re-ingestion overwrites by
// (source_type, listing_id).
type ListingRecord struct {
	ID            string   `bson:"_id" json:"id"`
	ComplexID     string   `bson:"complex_id" json:"complex_id"`
	SourceType    string   `bson:"source_type" json:"source_type"`
	ListingID     string   `bson:"listing_id" json:"listing_id"`
	DealType      string   `bson:"deal_type" json:"deal_type"`
	Price         *int64   `bson:"price,omitempty" json:"price,omitempty"`
	Deposit       *int64   `bson:"deposit,omitempty" json:"deposit,omitempty"`
	MonthlyRent   *int64   `bson:"monthly_rent,omitempty" json:"monthly_rent,omitempty"`
	ExclusiveArea *float64 `bson:"exclusive_area,omitempty" json:"exclusive_area,omitempty"`
	Floor         *int     `bson:"floor,omitempty" json:"floor,omitempty"`
	Status        string   `bson:"status" json:"status"`

	CrawledAt time.Time `bson:"crawled_at" json:"crawled_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NewListingRecord binds a crawler listing payload to a canonical
// complex.
func NewListingRecord(complexID, sourceType string, data *ListingData) *ListingRecord {
	now := time.Now()
	return &ListingRecord{
		ID:            primitive.NewObjectID().Hex(),
		ComplexID:     complexID,
		SourceType:    sourceType,
		ListingID:     data.ListingID,
		DealType:      data.DealType,
		Price:         data.Price,
		Deposit:       data.Deposit,
		MonthlyRent:   data.MonthlyRent,
		ExclusiveArea: data.ExclusiveArea,
		Floor:         data.Floor,
		Status:        ListingStatusActive,
		CrawledAt:     now,
		UpdatedAt:     now,
	}
}
