package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/geolink/internal/blockstore"
	"github.com/geolink/internal/config"
	"github.com/geolink/internal/logger"
	"github.com/geolink/internal/store"
	"github.com/geolink/internal/web"
)

func main() {
	configPath := flag.String("config", "geolink.yaml", "Path to YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	fmt.Println("=== Geolink Review API ===")
	fmt.Printf("Server: http://%s\n", cfg.HTTP.Address())
	fmt.Printf("Database: %s\n", cfg.Storage.Driver)

	ctx := context.Background()

	// Initialize database connection
	db, err := store.NewConnection(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Block artifacts are served from the file backend only
	var blocks blockstore.Store
	if cfg.Blocks.Backend == config.BackendFile {
		fs, err := blockstore.NewFileStore(cfg.Blocks.Dir)
		if err != nil {
			log.Fatalf("Failed to open block directory: %v", err)
		}
		blocks = fs
	}

	if err := web.NewServer(cfg.HTTP, db, blocks).Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
