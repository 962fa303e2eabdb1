package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/geolink/internal/blocking"
	"github.com/geolink/internal/blockstore"
	"github.com/geolink/internal/config"
	"github.com/geolink/internal/export"
	"github.com/geolink/internal/ingest"
	"github.com/geolink/internal/logger"
	"github.com/geolink/internal/match"
	"github.com/geolink/internal/metrics"
	"github.com/geolink/internal/model"
	"github.com/geolink/internal/pipeline"
	"github.com/geolink/internal/store"
	"github.com/geolink/internal/strsim"
	"github.com/geolink/internal/web"
)

var (
	// Global configuration, loaded before any subcommand runs
	cfg *config.Config

	configPath string
	localDebug bool
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:   "matcher",
		Short: "Geographic record linkage",
		Long:  `Links named point records to candidate locations using geographic blocking and fuzzy name matching`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Setup(cfg.Log.Level, cfg.Log.Format)
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "geolink.yaml", "Path to YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&localDebug, "debug", false, "Trace matching steps")

	// Add subcommands
	rootCmd.AddCommand(createPartitionCmd())
	rootCmd.AddCommand(createMatchCmd())
	rootCmd.AddCommand(createTuneCmd())
	rootCmd.AddCommand(createStatsCmd())
	rootCmd.AddCommand(createExportCmd())
	rootCmd.AddCommand(createServeCmd())

	// Execute root command
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// openBlockStore connects to the configured block artifact backend
func openBlockStore(ctx context.Context) (blockstore.Store, func(), error) {
	if cfg.Blocks.Backend == config.BackendRedis {
		client, err := blockstore.OpenRedis(ctx, cfg.Blocks.RedisAddr, cfg.Blocks.RedisPassword, cfg.Blocks.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return blockstore.NewRedisStore(client, cfg.Blocks.RedisPrefix), func() { client.Close() }, nil
	}

	fs, err := blockstore.NewFileStore(cfg.Blocks.Dir)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {}, nil
}

// newEngine builds the matching engine from configuration
func newEngine(blocks match.BlockSource) (*match.Engine, error) {
	m := cfg.Matching
	scorer, err := strsim.New(m.StringMetric, m.PrefixWeight)
	if err != nil {
		return nil, err
	}
	return match.NewEngine(blocks, scorer, match.Params{
		StringThreshold:     m.StringThreshold,
		MaxSpatialDistance:  m.MaxSpatialDistanceMeters,
		RegionNameThreshold: m.RegionNameThreshold,
	}), nil
}

// createPartitionCmd builds and persists the blocks
func createPartitionCmd() *cobra.Command {
	var candidatesFile, regionsFile string

	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Partition candidates and regions into geographic blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			candidates, err := ingest.LoadCandidates(candidatesFile)
			if err != nil {
				return err
			}
			regions, err := ingest.LoadRegions(regionsFile)
			if err != nil {
				return err
			}
			units, lower := ingest.SplitLevels(regions, cfg.Matching.TopLevel)
			if len(units) == 0 {
				return fmt.Errorf("no regions at top level %q in %s", cfg.Matching.TopLevel, regionsFile)
			}

			set := blocking.Partition(localDebug, candidates, lower, units, blocking.ByBlockingKey, cfg.Matching.BufferDistanceMeters)

			bs, closeFn, err := openBlockStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			manifest, err := blockstore.SaveSet(ctx, bs, set, cfg.Matching.BufferDistanceMeters)
			if err != nil {
				return err
			}

			st := manifest.Stats
			metrics.PartitionBlocks.Set(float64(st.Blocks))
			metrics.PartitionDropped.WithLabelValues("candidate").Set(float64(st.DroppedCandidates))
			metrics.PartitionDropped.WithLabelValues("region").Set(float64(st.DroppedRegions))
			metrics.PartitionDropped.WithLabelValues("invalid_region").Set(float64(st.InvalidRegions))

			fmt.Println("=== Partition Complete ===")
			fmt.Printf("Blocks:               %d (from %d units, %d invalid)\n", st.Blocks, st.Units, st.InvalidUnits)
			fmt.Printf("Candidates assigned:  %d (dropped %d, in several blocks %d)\n", st.Candidates, st.DroppedCandidates, st.MultiBlockCandidates)
			fmt.Printf("Regions assigned:     %d (dropped %d, invalid %d)\n", st.Regions, st.DroppedRegions, st.InvalidRegions)
			return nil
		},
	}

	cmd.Flags().StringVar(&candidatesFile, "candidates", "candidates.csv", "Candidates CSV file")
	cmd.Flags().StringVar(&regionsFile, "regions", "regions.geojson", "Regions GeoJSON file")
	return cmd
}

// createMatchCmd runs the matcher over a target file
func createMatchCmd() *cobra.Command {
	var targetsFile, runID string

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match targets to candidates",
		Long:  `Match every target in the file. Re-running with the same --run-id resumes from the stored results.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if runID == "" {
				runID = uuid.NewString()
			}

			targets, err := ingest.LoadTargets(targetsFile)
			if err != nil {
				return err
			}

			db, err := store.NewConnection(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.CreateRun(ctx, runID, cfg.Matching); err != nil {
				return err
			}

			pending, _, err := pipeline.Pending(ctx, db, runID, targets)
			if err != nil {
				return err
			}

			bs, closeFn, err := openBlockStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			blocks, err := pipeline.PreloadBlocks(ctx, bs, pending)
			if err != nil {
				return err
			}

			engine, err := newEngine(blocks)
			if err != nil {
				return err
			}

			slog.Info("starting match run", slog.String("run_id", runID), slog.Int("targets", len(targets)),
				slog.Int("pending", len(pending)), slog.Int("workers", cfg.Matching.WorkerCount))

			bp := pipeline.NewBatchProcessor(engine, db, pipeline.Options{
				Workers:   cfg.Matching.WorkerCount,
				BatchSize: cfg.Matching.BatchSize,
			})
			stats, err := bp.Run(ctx, localDebug, runID, targets)
			if stats != nil {
				printBatchStats(stats)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&targetsFile, "targets", "targets.csv", "Targets CSV file")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (generated when empty)")
	return cmd
}

func printBatchStats(stats *pipeline.BatchStats) {
	fmt.Println("\n=== Match Run Summary ===")
	fmt.Printf("Run ID:     %s\n", stats.RunID)
	fmt.Printf("Targets:    %d\n", stats.TotalTargets)
	fmt.Printf("Resumed:    %d\n", stats.ResumedCount)
	fmt.Printf("Processed:  %d\n", stats.ProcessedCount)
	fmt.Printf("Skipped:    %d\n", stats.SkippedCount)
	for _, st := range model.AllStatuses {
		fmt.Printf("  %-11s %d\n", st, stats.Counts[st])
	}
	fmt.Printf("Time:       %v\n", stats.ProcessingTime.Round(time.Millisecond))
}

// createTuneCmd sweeps the string threshold over a target file
func createTuneCmd() *cobra.Command {
	var targetsFile, knownGoodRun string
	var thresholds []float64

	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Find a suitable string threshold",
		Long:  `Run the engine at several string thresholds and report survivors, status counts and, given a reference run, precision and recall`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			targets, err := ingest.LoadTargets(targetsFile)
			if err != nil {
				return err
			}

			var knownGood map[string]string
			if knownGoodRun != "" {
				db, err := store.NewConnection(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
				if err != nil {
					return err
				}
				knownGood, err = db.KnownGood(ctx, knownGoodRun)
				db.Close()
				if err != nil {
					return err
				}
				fmt.Printf("Found %d matched targets in run %s for validation\n\n", len(knownGood), knownGoodRun)
			}

			bs, closeFn, err := openBlockStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			blocks, err := pipeline.PreloadBlocks(ctx, bs, targets)
			if err != nil {
				return err
			}
			engine, err := newEngine(blocks)
			if err != nil {
				return err
			}

			results := engine.Tune(targets, thresholds, knownGood)

			fmt.Println("=== Threshold Analysis ===")
			fmt.Println("Threshold | Survivors | Matched | Ambiguous | Rejected | Unresolved | Precision | Recall | F1")
			fmt.Println("----------|-----------|---------|-----------|----------|------------|-----------|--------|------")
			for _, r := range results {
				fmt.Printf("  %.3f   | %9d | %7d | %9d | %8d | %10d |  %6.2f%%  | %5.1f%% | %.3f\n",
					r.Threshold, r.Survivors,
					r.Counts[model.StatusMatched], r.Counts[model.StatusAmbiguous],
					r.Counts[model.StatusRejected], r.Counts[model.StatusUnresolved],
					r.Precision*100, r.Recall*100, r.F1Score)
			}

			if best, ok := match.BestThreshold(results); ok {
				fmt.Printf("\nBest threshold by F1: %.3f\n", best.Threshold)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&targetsFile, "targets", "targets.csv", "Targets CSV file")
	cmd.Flags().StringVar(&knownGoodRun, "known-good-run", "", "Run whose matches are treated as ground truth")
	cmd.Flags().Float64SliceVar(&thresholds, "thresholds", nil, "Thresholds to test (default sweep when empty)")
	return cmd
}

// createStatsCmd prints per-status counts for a run
func createStatsCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show result counts for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := store.NewConnection(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if runID == "" {
				runs, err := db.ListRuns(ctx)
				if err != nil {
					return err
				}
				fmt.Println("Run ID                               | Created")
				fmt.Println("-------------------------------------|--------------------")
				for _, r := range runs {
					fmt.Printf("%-36s | %s\n", r.ID, r.CreatedAt.Format(time.RFC3339))
				}
				return nil
			}

			counts, err := db.StatusCounts(ctx, runID)
			if err != nil {
				return err
			}
			total := 0
			for _, n := range counts {
				total += n
			}

			fmt.Printf("=== Run %s ===\n", runID)
			fmt.Println("Status      | Count   | Share")
			fmt.Println("------------|---------|-------")
			for _, st := range model.AllStatuses {
				share := 0.0
				if total > 0 {
					share = float64(counts[st]) / float64(total) * 100
				}
				fmt.Printf("%-11s | %7d | %5.1f%%\n", st, counts[st], share)
			}
			fmt.Printf("Total       | %7d\n", total)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run to summarize (lists runs when empty)")
	return cmd
}

// createExportCmd writes a run's results to CSV
func createExportCmd() *cobra.Command {
	var runID, output, status string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export run results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			filter := store.ResultFilter{}
			if status != "" {
				st, err := model.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = st
			}

			db, err := store.NewConnection(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := db.ListResults(ctx, runID, filter)
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("export/%s.csv", runID)
			}
			if err := export.WriteFile(output, results); err != nil {
				return err
			}

			fmt.Printf("Exported %d results to %s\n", len(results), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run to export")
	cmd.Flags().StringVar(&output, "output", "", "Output CSV path (default export/<run-id>.csv)")
	cmd.Flags().StringVar(&status, "status", "", "Only export results with this status")
	cmd.MarkFlagRequired("run-id")
	return cmd
}

// createServeCmd starts the review API
func createServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the review API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := store.NewConnection(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			bs, closeFn, err := openBlockStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			return web.NewServer(cfg.HTTP, db, bs).Start(ctx)
		},
	}
}
