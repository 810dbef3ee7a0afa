package main

import (
	"context"
	"time"

	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/complex-registry/app/config"
	"github.com/complex-registry/internal/search"
	"github.com/complex-registry/internal/store"
)

const reindexPageSize = 1000

// Rebuilds the Meilisearch complexes index from the canonical store.
// Run after a bulk backfill, or whenever the index has drifted from
// the store.
func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	v := viper.New()
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db", "complex_registry")
	v.SetDefault("meili_host", "http://localhost:7700")
	v.SetDefault("meili_api_key", "")
	v.SetEnvPrefix("registry")
	v.AutomaticEnv()

	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(v.GetString("mongo_uri")))
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer client.Disconnect(context.Background())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		logger.Fatal("mongo ping", zap.Error(err))
	}

	cfg := config.Default()
	ms, err := store.NewMongoStore(client.Database(v.GetString("mongo_db")), cfg.Dedup.CoordPrecision, logger)
	if err != nil {
		logger.Fatal("store init", zap.Error(err))
	}

	searcher, err := search.NewComplexSearcher(search.SearchConfig{
		Host:      v.GetString("meili_host"),
		APIKey:    v.GetString("meili_api_key"),
		IndexName: "complexes",
		Timeout:   60 * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("meilisearch connect", zap.Error(err))
	}

	if err := searcher.ConfigureIndex(); err != nil {
		logger.Fatal("index settings", zap.Error(err))
	}

	var afterID string
	total := 0
	for {
		page, err := ms.ListComplexes(ctx, afterID, reindexPageSize)
		if err != nil {
			logger.Fatal("list complexes", zap.String("after_id", afterID), zap.Error(err))
		}
		if len(page) == 0 {
			break
		}
		if err := searcher.IndexBatch(page); err != nil {
			logger.Fatal("index batch", zap.Error(err))
		}
		total += len(page)
		afterID = page[len(page)-1].ID
		logger.Info("indexed batch", zap.Int("total", total))
	}

	logger.Info("reindex complete", zap.Int("complexes", total))
}
