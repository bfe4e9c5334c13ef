// Command zone-ingest loads a GeoJSON tax zone feed into the database,
// replacing the persisted zone set in one transaction.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/surveysystem/tax-api/internal/logger"
	"github.com/surveysystem/tax-api/internal/store"
	"github.com/surveysystem/tax-api/internal/tax"
)

func main() {
	feedPath := flag.String("feed", "", "path to the GeoJSON zone feed (required)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	logger.InitLogger()
	defer logger.Sync()

	if *feedPath == "" {
		logger.Fatal("-feed is required")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	f, err := os.Open(*feedPath)
	if err != nil {
		logger.Fatal("Unable to open zone feed", zap.Error(err))
	}
	defer f.Close()

	zones, err := tax.ParseFeed(f)
	if err != nil {
		logger.Fatal("Zone feed rejected", zap.Error(err))
	}

	// Build the spatial index once up front so a feed that would be
	// refused by the API never reaches the database.
	index := tax.NewZoneIndex()
	if err := index.Load(zones); err != nil {
		logger.Fatal("Zone set rejected", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pg, err := store.Connect(ctx, dbURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", zap.Error(err))
	}
	defer pg.Close()

	if err := pg.ReplaceZones(ctx, zones); err != nil {
		logger.Fatal("Unable to replace zone set", zap.Error(err))
	}
	logger.Info("Zone set replaced", zap.Int("zones", len(zones)))
}
