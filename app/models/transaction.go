package models

import "time"

// TransactionRecord is one observed sale/lease event bound to exactly
// one canonical complex. Immutable after insertion: the ingest path
// only ever appends, and the dedup pass only ever re-points ComplexID.
// The id is derived from the source observation, so re-ingesting the
// same record writes the same row instead of a second one.
type TransactionRecord struct {
	ID            string     `bson:"_id" json:"id"`
	ComplexID     string     `bson:"complex_id" json:"complex_id"`
	SourceType    string     `bson:"source_type" json:"source_type"`
	Amount        *int64     `bson:"amount,omitempty" json:"amount,omitempty"` // 만원
	DealDate      *time.Time `bson:"deal_date,omitempty" json:"deal_date,omitempty"`
	ExclusiveArea *float64   `bson:"exclusive_area,omitempty" json:"exclusive_area,omitempty"`
	Floor         *int       `bson:"floor,omitempty" json:"floor,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
}

// NewTransactionRecord binds a registry transaction payload to a
// canonical complex under the source observation's key.
func NewTransactionRecord(complexID, sourceType, sourceID string, data *TransactionData) *TransactionRecord {
	return &TransactionRecord{
		ID:            sourceType + ":" + sourceID,
		ComplexID:     complexID,
		SourceType:    sourceType,
		Amount:        data.Amount,
		DealDate:      data.DealDate,
		ExclusiveArea: data.ExclusiveArea,
		Floor:         data.Floor,
		CreatedAt:     time.Now(),
	}
}
