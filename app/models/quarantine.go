package models

import "time"

// QuarantineRecord holds a source record that kept failing store writes
// after the chunk-boundary retry. The batch continues without it; the
// record and its reason stay queryable for later reprocessing.
type QuarantineRecord struct {
	SourceType string       `bson:"source_type" json:"source_type"`
	SourceID   string       `bson:"source_id" json:"source_id"`
	Reason     string       `bson:"reason" json:"reason"`
	Record     SourceRecord `bson:"record" json:"record"`
	CreatedAt  time.Time    `bson:"created_at" json:"created_at"`
}
