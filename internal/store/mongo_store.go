package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/complex-registry/app/models"
)

// Collection names of the canonical store.
const (
	collComplexes  = "complexes"
	collProvenance = "provenance_mappings"
	collTxns       = "transactions"
	collListings   = "listings"
	collQuarantine = "quarantine"
	collCheckpoint = "batch_checkpoints"
)

const dedupCheckpointID = "dedup"

// complexDoc wraps a CanonicalComplex with the derived coord_key index
// field.
type complexDoc struct {
	models.CanonicalComplex `bson:",inline"`
	CoordKey                string `bson:"coord_key,omitempty"`
}

// MongoStore is the persistent canonical store.
type MongoStore struct {
	db             *mongo.Database
	logger         *zap.Logger
	coordPrecision int

	complexes  *mongo.Collection
	provenance *mongo.Collection
	txns       *mongo.Collection
	listings   *mongo.Collection
	quarantine *mongo.Collection
	checkpoint *mongo.Collection
}

// NewMongoStore wires the collections and ensures indexes. Index
// creation failures are logged, not fatal: a store behind a read-only
// user can still serve reads.
func NewMongoStore(db *mongo.Database, coordPrecision int, logger *zap.Logger) (*MongoStore, error) {
	ms := &MongoStore{
		db:             db,
		logger:         logger,
		coordPrecision: coordPrecision,
		complexes:      db.Collection(collComplexes),
		provenance:     db.Collection(collProvenance),
		txns:           db.Collection(collTxns),
		listings:       db.Collection(collListings),
		quarantine:     db.Collection(collQuarantine),
		checkpoint:     db.Collection(collCheckpoint),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := ms.complexes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "normalized_name", Value: 1}}},
		{Keys: bson.D{{Key: "region.province", Value: 1}, {Key: "region.city", Value: 1}}},
		{Keys: bson.D{{Key: "coord_key", Value: 1}}},
	})
	if err != nil {
		logger.Warn("failed to create complex indexes", zap.Error(err))
	}

	_, err = ms.provenance.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "source_type", Value: 1}, {Key: "source_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "canonical_id", Value: 1}}},
	})
	if err != nil {
		logger.Warn("failed to create provenance indexes", zap.Error(err))
	}

	_, err = ms.txns.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "complex_id", Value: 1}}},
	})
	if err != nil {
		logger.Warn("failed to create transaction indexes", zap.Error(err))
	}

	_, err = ms.listings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "complex_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "source_type", Value: 1}, {Key: "listing_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		logger.Warn("failed to create listing indexes", zap.Error(err))
	}

	return ms, nil
}

func (ms *MongoStore) GetComplex(ctx context.Context, id string) (*models.CanonicalComplex, error) {
	var doc complexDoc
	err := ms.complexes.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get complex %s: %w", id, err)
	}
	return &doc.CanonicalComplex, nil
}

func (ms *MongoStore) FindByNormalizedName(ctx context.Context, normalizedName string, limit int) ([]*models.CanonicalComplex, error) {
	return ms.find(ctx, bson.M{"normalized_name": normalizedName}, limit)
}

func (ms *MongoStore) FindByRegion(ctx context.Context, province, city string, limit int) ([]*models.CanonicalComplex, error) {
	filter := bson.M{}
	if province != "" {
		filter["region.province"] = province
	}
	if city != "" {
		filter["region.city"] = city
	}
	if len(filter) == 0 {
		// Never degrade into a full-store scan.
		return nil, nil
	}
	return ms.find(ctx, filter, limit)
}

func (ms *MongoStore) FindByCoordKey(ctx context.Context, coordKey string, limit int) ([]*models.CanonicalComplex, error) {
	if coordKey == "" {
		return nil, nil
	}
	return ms.find(ctx, bson.M{"coord_key": coordKey}, limit)
}

func (ms *MongoStore) ListComplexes(ctx context.Context, afterID string, limit int) ([]*models.CanonicalComplex, error) {
	filter := bson.M{}
	if afterID != "" {
		filter["_id"] = bson.M{"$gt": afterID}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := ms.complexes.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list complexes: %w", err)
	}
	return decodeComplexes(ctx, cursor)
}

func (ms *MongoStore) UpdateComplex(ctx context.Context, c *models.CanonicalComplex) error {
	doc := complexDoc{CanonicalComplex: *c, CoordKey: c.CoordKey(ms.coordPrecision)}
	res, err := ms.complexes.ReplaceOne(ctx, bson.M{"_id": c.ID}, doc)
	if err != nil {
		return fmt.Errorf("update complex %s: %w", c.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (ms *MongoStore) DeleteComplex(ctx context.Context, id string) error {
	res, err := ms.complexes.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete complex %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (ms *MongoStore) GetProvenanceBySource(ctx context.Context, sourceType, sourceID string) (*models.ProvenanceMapping, error) {
	var pm models.ProvenanceMapping
	err := ms.provenance.FindOne(ctx, bson.M{"source_type": sourceType, "source_id": sourceID}).Decode(&pm)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provenance %s:%s: %w", sourceType, sourceID, err)
	}
	return &pm, nil
}

// ApplyResolution writes the canonical mutation and the provenance
// mapping as one logical unit. Without a replica set there is no
// multi-document transaction, so the insert path compensates: a
// provenance failure after a fresh complex insert deletes the complex
// again. On the enrichment path a provenance failure leaves only
// fill-if-null field updates behind, which a re-run reproduces
// harmlessly.
func (ms *MongoStore) ApplyResolution(ctx context.Context, c *models.CanonicalComplex, prov *models.ProvenanceMapping, created bool) error {
	doc := complexDoc{CanonicalComplex: *c, CoordKey: c.CoordKey(ms.coordPrecision)}

	if created {
		if _, err := ms.complexes.InsertOne(ctx, doc); err != nil {
			return fmt.Errorf("insert complex %s: %w", c.ID, err)
		}
	} else {
		res, err := ms.complexes.ReplaceOne(ctx, bson.M{"_id": c.ID}, doc)
		if err != nil {
			return fmt.Errorf("update complex %s: %w", c.ID, err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
	}

	if _, err := ms.provenance.InsertOne(ctx, prov); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if created {
				ms.compensateInsert(c.ID)
			}
			return ErrDuplicateProvenance
		}
		if created {
			ms.compensateInsert(c.ID)
		}
		return fmt.Errorf("insert provenance %s: %w", prov.Key(), err)
	}

	return nil
}

// compensateInsert rolls back a freshly inserted complex whose
// provenance write failed. Best effort; a leftover complex without
// provenance is caught by the dedup pass.
func (ms *MongoStore) compensateInsert(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := ms.complexes.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		ms.logger.Warn("failed to compensate complex insert",
			zap.String("complex_id", id), zap.Error(err))
	}
}

func (ms *MongoStore) InsertTransaction(ctx context.Context, tr *models.TransactionRecord) error {
	if _, err := ms.txns.InsertOne(ctx, tr); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Same source observation re-attached on a retry.
			return nil
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (ms *MongoStore) UpsertListing(ctx context.Context, l *models.ListingRecord) error {
	filter := bson.M{"source_type": l.SourceType, "listing_id": l.ListingID}
	opts := options.Replace().SetUpsert(true)
	if _, err := ms.listings.ReplaceOne(ctx, filter, l, opts); err != nil {
		return fmt.Errorf("upsert listing %s:%s: %w", l.SourceType, l.ListingID, err)
	}
	return nil
}

func (ms *MongoStore) CountTransactions(ctx context.Context, complexID string) (int64, error) {
	n, err := ms.txns.CountDocuments(ctx, bson.M{"complex_id": complexID})
	if err != nil {
		return 0, fmt.Errorf("count transactions for %s: %w", complexID, err)
	}
	return n, nil
}

func (ms *MongoStore) ListProvenanceByComplex(ctx context.Context, complexID string) ([]*models.ProvenanceMapping, error) {
	cursor, err := ms.provenance.Find(ctx, bson.M{"canonical_id": complexID})
	if err != nil {
		return nil, fmt.Errorf("list provenance for %s: %w", complexID, err)
	}
	defer cursor.Close(ctx)

	var out []*models.ProvenanceMapping
	for cursor.Next(ctx) {
		var pm models.ProvenanceMapping
		if err := cursor.Decode(&pm); err != nil {
			return nil, fmt.Errorf("decode provenance: %w", err)
		}
		out = append(out, &pm)
	}
	return out, cursor.Err()
}

func (ms *MongoStore) RepointChildren(ctx context.Context, fromID, toID string) error {
	update := bson.M{"$set": bson.M{"complex_id": toID}}
	if _, err := ms.txns.UpdateMany(ctx, bson.M{"complex_id": fromID}, update); err != nil {
		return fmt.Errorf("repoint transactions %s→%s: %w", fromID, toID, err)
	}
	if _, err := ms.listings.UpdateMany(ctx, bson.M{"complex_id": fromID}, update); err != nil {
		return fmt.Errorf("repoint listings %s→%s: %w", fromID, toID, err)
	}
	provUpdate := bson.M{"$set": bson.M{"canonical_id": toID}}
	if _, err := ms.provenance.UpdateMany(ctx, bson.M{"canonical_id": fromID}, provUpdate); err != nil {
		return fmt.Errorf("repoint provenance %s→%s: %w", fromID, toID, err)
	}
	return nil
}

func (ms *MongoStore) InsertQuarantine(ctx context.Context, q *models.QuarantineRecord) error {
	if _, err := ms.quarantine.InsertOne(ctx, q); err != nil {
		return fmt.Errorf("insert quarantine %s: %w", q.SourceType+":"+q.SourceID, err)
	}
	return nil
}

func (ms *MongoStore) GetDedupCheckpoint(ctx context.Context) (string, error) {
	var doc struct {
		GroupKey string `bson:"group_key"`
	}
	err := ms.checkpoint.FindOne(ctx, bson.M{"_id": dedupCheckpointID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get dedup checkpoint: %w", err)
	}
	return doc.GroupKey, nil
}

func (ms *MongoStore) SetDedupCheckpoint(ctx context.Context, groupKey string) error {
	opts := options.Replace().SetUpsert(true)
	doc := bson.M{"_id": dedupCheckpointID, "group_key": groupKey, "updated_at": time.Now()}
	if _, err := ms.checkpoint.ReplaceOne(ctx, bson.M{"_id": dedupCheckpointID}, doc, opts); err != nil {
		return fmt.Errorf("set dedup checkpoint: %w", err)
	}
	return nil
}

func (ms *MongoStore) ClearDedupCheckpoint(ctx context.Context) error {
	if _, err := ms.checkpoint.DeleteOne(ctx, bson.M{"_id": dedupCheckpointID}); err != nil {
		return fmt.Errorf("clear dedup checkpoint: %w", err)
	}
	return nil
}

func (ms *MongoStore) Close(ctx context.Context) error {
	return ms.db.Client().Disconnect(ctx)
}

// LoadSourceRecords reads staged extractor output from a raw
// collection. Not part of the Store interface; only the batch worker
// uses it.
func (ms *MongoStore) LoadSourceRecords(ctx context.Context, collection string, limit int) ([]models.SourceRecord, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := ms.db.Collection(collection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("load source records from %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var records []models.SourceRecord
	for cursor.Next(ctx) {
		var rec models.SourceRecord
		if err := cursor.Decode(&rec); err != nil {
			ms.logger.Warn("skipping undecodable source record", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, cursor.Err()
}

func (ms *MongoStore) find(ctx context.Context, filter bson.M, limit int) ([]*models.CanonicalComplex, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := ms.complexes.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find complexes: %w", err)
	}
	return decodeComplexes(ctx, cursor)
}

func decodeComplexes(ctx context.Context, cursor *mongo.Cursor) ([]*models.CanonicalComplex, error) {
	defer cursor.Close(ctx)
	var out []*models.CanonicalComplex
	for cursor.Next(ctx) {
		var doc complexDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode complex: %w", err)
		}
		c := doc.CanonicalComplex
		out = append(out, &c)
	}
	return out, cursor.Err()
}

var _ Store = (*MongoStore)(nil)
