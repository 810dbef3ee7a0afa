package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/complex-registry/app/config"
	"github.com/complex-registry/app/models"
	"github.com/complex-registry/app/services"
	"github.com/complex-registry/internal/matcher"
	"github.com/complex-registry/internal/normalizer"
	"github.com/complex-registry/internal/search"
	"github.com/complex-registry/internal/store"
)

// Raw staging collections written by the extractors, keyed by worker
// mode.
var sourceCollections = map[string]string{
	models.SourceGovRegistry: "registry_raw",
	models.SourceCrawler:     "crawler_raw",
	models.SourceSnapshot:    "snapshot_raw",
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	v := viper.New()
	v.SetDefault("mode", "ingest")
	v.SetDefault("source", models.SourceGovRegistry)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db", "complex_registry")
	v.SetDefault("redis_url", "")
	v.SetDefault("meili_host", "")
	v.SetDefault("meili_api_key", "")
	v.SetDefault("matcher_config", "config/matcher.yaml")
	v.SetDefault("batch_limit", 100000)
	v.SetEnvPrefix("registry")
	v.AutomaticEnv()

	if err := config.Load(v.GetString("matcher_config")); err != nil {
		logger.Warn("matcher config not loaded, using defaults",
			zap.String("path", v.GetString("matcher_config")), zap.Error(err))
	}
	cfg := config.C

	logger.Info("starting registry worker",
		zap.String("mode", v.GetString("mode")),
		zap.String("source", v.GetString("source")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoStore, client := mustMongo(ctx, v, cfg, logger)
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("mongo disconnect failed", zap.Error(err))
		}
	}()

	cache := buildResolveCache(v, logger)
	if cache != nil {
		defer cache.Close()
	}

	names := normalizer.NewNameNormalizer()
	regions := normalizer.NewRegionExtractor()
	pipeline := matcher.NewPipeline(cfg, logger)

	var finder matcher.CandidateFinder = matcher.NewStoreCandidateFinder(mongoStore, cfg, logger)
	var indexer services.ComplexIndexer
	if host := v.GetString("meili_host"); host != "" {
		searcher, err := search.NewComplexSearcher(search.SearchConfig{
			Host:      host,
			APIKey:    v.GetString("meili_api_key"),
			IndexName: "complexes",
			Timeout:   30 * time.Second,
		}, logger)
		if err != nil {
			logger.Warn("search index unavailable, continuing without it", zap.Error(err))
		} else {
			finder = search.NewSearchCandidateFinder(finder, searcher, mongoStore, cfg.MaxCandidates, logger)
			indexer = searcher
		}
	}

	merger := services.NewMergeService(mongoStore, finder, pipeline, names, regions, cache, indexer, logger)

	switch mode := v.GetString("mode"); mode {
	case "ingest":
		runIngest(ctx, v, mongoStore, merger, names, cfg, logger)
	case "dedup":
		runDedup(ctx, mongoStore, indexer, cache, cfg, logger)
	default:
		logger.Fatal("unknown mode", zap.String("mode", mode))
	}
}

func runIngest(ctx context.Context, v *viper.Viper, ms *store.MongoStore, merger *services.MergeService,
	names *normalizer.NameNormalizer, cfg config.MatcherCfg, logger *zap.Logger) {

	source := v.GetString("source")
	collection, ok := sourceCollections[source]
	if !ok {
		logger.Fatal("unknown source", zap.String("source", source))
	}

	raw, err := ms.LoadSourceRecords(ctx, collection, v.GetInt("batch_limit"))
	if err != nil {
		logger.Fatal("load source records", zap.String("collection", collection), zap.Error(err))
	}
	records := make([]*models.SourceRecord, len(raw))
	for i := range raw {
		records[i] = &raw[i]
	}
	logger.Info("source feed loaded",
		zap.String("collection", collection),
		zap.Int("records", len(records)))

	ingest := services.NewIngestService(merger, ms, names, cfg.Batch, logger)
	report, err := ingest.IngestBatch(ctx, records)
	if err != nil {
		logger.Fatal("batch failed", zap.Error(err))
	}
	logger.Info("ingest finished",
		zap.Int("inserted", report.Inserted),
		zap.Int("merged", report.Merged),
		zap.Int("skipped", report.Skipped),
		zap.Int("errored", report.Errored))
}

func runDedup(ctx context.Context, ms *store.MongoStore, indexer services.ComplexIndexer,
	cache services.ResolveCache, cfg config.MatcherCfg, logger *zap.Logger) {

	dedup := services.NewDedupService(ms, indexer, cache, cfg.Dedup, logger)
	report, err := dedup.Run(ctx)
	if err != nil {
		logger.Fatal("dedup failed", zap.Error(err))
	}
	logger.Info("dedup finished",
		zap.Int("groups_examined", report.GroupsExamined),
		zap.Int("groups_merged", report.Merged),
		zap.Int("retired", report.Retired),
		zap.Int("id_tie_breaks", report.TieBreaks))
}

func mustMongo(ctx context.Context, v *viper.Viper, cfg config.MatcherCfg, logger *zap.Logger) (*store.MongoStore, *mongo.Client) {
	uri := v.GetString("mongo_uri")
	logger.Info("connecting to mongodb", zap.String("uri", redactURI(uri)))

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		logger.Fatal("mongo ping", zap.Error(err))
	}

	db := client.Database(v.GetString("mongo_db"))
	ms, err := store.NewMongoStore(db, cfg.Dedup.CoordPrecision, logger)
	if err != nil {
		logger.Fatal("store init", zap.Error(err))
	}
	return ms, client
}

func buildResolveCache(v *viper.Viper, logger *zap.Logger) services.ResolveCache {
	l1, err := services.NewLRUResolveCache(10000)
	if err != nil {
		logger.Warn("lru cache init failed, running uncached", zap.Error(err))
		return nil
	}
	redisURL := v.GetString("redis_url")
	if redisURL == "" {
		return l1
	}
	l2, err := services.NewRedisResolveCache(redisURL, logger)
	if err != nil {
		logger.Warn("redis unavailable, using in-process cache only", zap.Error(err))
		return l1
	}
	return services.NewHybridResolveCache(l1, l2, logger)
}

func redactURI(uri string) string {
	if at := strings.LastIndex(uri, "@"); at != -1 {
		if scheme := strings.Index(uri, "://"); scheme != -1 {
			return uri[:scheme+3] + "***" + uri[at:]
		}
	}
	return uri
}
