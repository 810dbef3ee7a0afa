package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"

	"github.com/complex-registry/app/config"
	"github.com/complex-registry/app/models"
	"github.com/complex-registry/internal/normalizer"
	"github.com/complex-registry/internal/store"
)

// IngestService drives batch ingestion: it chunks a source feed, fans
// each chunk out over a fixed worker pool, and aggregates per-chunk
// outcomes into a batch report.
type IngestService struct {
	merger *MergeService
	store  store.Store
	names  *normalizer.NameNormalizer
	cfg    config.BatchCfg
	logger *zap.Logger
}

func NewIngestService(merger *MergeService, st store.Store, names *normalizer.NameNormalizer,
	cfg config.BatchCfg, logger *zap.Logger) *IngestService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = config.Default().Batch.ChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = config.Default().Batch.Workers
	}
	return &IngestService{merger: merger, store: st, names: names, cfg: cfg, logger: logger}
}

// IngestBatch resolves every record in the feed. One bad record never
// aborts the batch: failures are retried once at the chunk boundary and
// then quarantined.
func (s *IngestService) IngestBatch(ctx context.Context, records []*models.SourceRecord) (*models.BatchReport, error) {
	started := time.Now()
	report := &models.BatchReport{StartedAt: started}

	for offset := 0; offset < len(records); offset += s.cfg.ChunkSize {
		end := offset + s.cfg.ChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[offset:end]

		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started)
			return report, fmt.Errorf("batch aborted after %d records: %w", report.Processed, err)
		}

		cr := s.ingestChunk(ctx, chunk)
		report.ChunkReport.Add(cr)
		report.Chunks++

		s.logger.Info("chunk ingested",
			zap.Int("chunk", report.Chunks),
			zap.Int("processed", cr.Processed),
			zap.Int("inserted", cr.Inserted),
			zap.Int("merged", cr.Merged),
			zap.Int("skipped", cr.Skipped),
			zap.Int("errored", cr.Errored))
	}

	report.Duration = time.Since(started)
	s.logger.Info("batch complete",
		zap.Int("chunks", report.Chunks),
		zap.Int("processed", report.Processed),
		zap.Int("inserted", report.Inserted),
		zap.Int("merged", report.Merged),
		zap.Int("skipped", report.Skipped),
		zap.Int("errored", report.Errored),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// ingestChunk partitions the chunk across workers by normalized-name
// shard, so two records that could resolve to the same not-yet-existing
// complex are never raced by different goroutines.
func (s *IngestService) ingestChunk(ctx context.Context, chunk []*models.SourceRecord) models.ChunkReport {
	shards := make([][]*models.SourceRecord, s.cfg.Workers)
	for _, rec := range chunk {
		i := s.shard(rec)
		shards[i] = append(shards[i], rec)
	}

	results := make(chan models.ChunkReport, s.cfg.Workers)
	retries := make(chan *models.SourceRecord, len(chunk))

	for _, shard := range shards {
		go func(recs []*models.SourceRecord) {
			var cr models.ChunkReport
			for _, rec := range recs {
				cr.Processed++
				res, err := s.merger.Resolve(ctx, rec)
				if err != nil {
					s.logger.Warn("resolve failed, will retry",
						zap.String("source", rec.Key()), zap.Error(err))
					retries <- rec
					continue
				}
				tally(&cr, res)
			}
			results <- cr
		}(shard)
	}

	var cr models.ChunkReport
	for i := 0; i < s.cfg.Workers; i++ {
		cr.Add(<-results)
	}
	close(retries)

	// Second pass, serial. Anything that fails twice goes to
	// quarantine for manual inspection.
	for rec := range retries {
		res, err := s.merger.Resolve(ctx, rec)
		if err != nil {
			cr.Errored++
			s.quarantine(ctx, rec, err)
			continue
		}
		tally(&cr, res)
	}
	return cr
}

func tally(cr *models.ChunkReport, res *Resolution) {
	switch {
	case res.Skipped:
		cr.Skipped++
	case res.Created:
		cr.Inserted++
	default:
		cr.Merged++
	}
}

func (s *IngestService) shard(rec *models.SourceRecord) int {
	key := s.names.Normalize(rec.Name)
	if key == "" {
		key = rec.Key()
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(s.cfg.Workers))
}

func (s *IngestService) quarantine(ctx context.Context, rec *models.SourceRecord, cause error) {
	q := &models.QuarantineRecord{
		SourceType: rec.SourceType,
		SourceID:   rec.SourceID,
		Reason:     cause.Error(),
		Record:     *rec,
		CreatedAt:  time.Now(),
	}
	if err := s.store.InsertQuarantine(ctx, q); err != nil {
		s.logger.Error("quarantine write failed",
			zap.String("source", rec.Key()), zap.Error(err))
	}
}
