package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/cinesense/journey-engine/internal/api"
	"github.com/cinesense/journey-engine/internal/auth"
	"github.com/cinesense/journey-engine/internal/config"
	"github.com/cinesense/journey-engine/internal/core"
	"github.com/cinesense/journey-engine/internal/logging"
	"github.com/cinesense/journey-engine/internal/store"
	"github.com/cinesense/journey-engine/internal/supervisor"
	"github.com/cinesense/journey-engine/internal/supervisor/services"
)

func main() {
	importFile := flag.String("import", "", "Import a catalog JSON file and exit")
	recalculate := flag.Bool("recalculate", false, "Recalculate cached leaf relevance scores and exit")
	movieID := flag.String("movie", "", "With -recalculate: only suggestions of this movie")
	leafID := flag.Int64("leaf", 0, "With -recalculate: only suggestions of this leaf option")
	minScore := flag.Float64("min-score", -1, "With -recalculate: only rows scored below this value (default recalc.min_score for full runs)")
	dryRun := flag.Bool("dry-run", false, "With -recalculate: compute without writing")
	issueToken := flag.String("issue-token", "", "Print a signed bearer token for this user id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	logger := logging.Logger()

	if *issueToken != "" {
		token, err := auth.GenerateJWT(cfg.Auth.JWTSecret, *issueToken, cfg.Auth.TokenTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to issue token")
		}
		fmt.Println(token)
		return
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to initialize database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *importFile != "" {
		stats, err := db.ImportCatalogFromFile(ctx, *importFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", *importFile).Msg("Catalog import failed")
		}
		logger.Info().Interface("stats", stats).Msg("Catalog imported")
		return
	}

	graphs := core.NewGraphLoader(db, cfg.Cache.GraphTTL, logger)
	defer graphs.Close()
	recalc := core.NewRecalculator(db, graphs, cfg.Recalc.Workers, logger)

	if *recalculate {
		req := core.RecalcRequest{MovieID: *movieID, LeafID: *leafID, DryRun: *dryRun}
		switch {
		case *minScore >= 0:
			req.MinScore = minScore
		case *movieID == "" && *leafID == 0:
			req.MinScore = scheduledMinScore(cfg.Recalc)
		}
		if err := runRecalculation(ctx, recalc, req, logger); err != nil {
			logger.Fatal().Err(err).Msg("Recalculation failed")
		}
		return
	}

	handler := api.NewAPIHandler(
		core.NewJourneyService(db, graphs, logger),
		core.NewSessionService(db, cfg.Recommend, logger),
		recalc,
		db,
	)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler, cfg.Auth.JWTSecret),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logger, treeCfg)
	tree.AddAPIService(services.NewAPIService(srv, cfg.Server.ShutdownTimeout, logger))
	if cfg.Recalc.Enabled {
		tree.AddJobService(services.NewRecalcService(recalc, services.RecalcServiceConfig{
			OnStartup: cfg.Recalc.OnStartup,
			Interval:  cfg.Recalc.Interval,
			MinScore:  scheduledMinScore(cfg.Recalc),
		}, logger))
	}

	logger.Info().
		Str("addr", srv.Addr).
		Bool("recalc_enabled", cfg.Recalc.Enabled).
		Bool("auth_enabled", cfg.Auth.JWTSecret != "").
		Msg("Starting server")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Supervisor stopped unexpectedly")
	}
	logger.Info().Msg("Server exiting gracefully")
}

// scheduledMinScore returns nil when the configured floor is not positive,
// which rescores every row.
func scheduledMinScore(cfg config.RecalcConfig) *float64 {
	if cfg.MinScore <= 0 {
		return nil
	}
	v := cfg.MinScore
	return &v
}

func runRecalculation(ctx context.Context, recalc *core.Recalculator, req core.RecalcRequest, logger zerolog.Logger) error {
	report, err := recalc.Recalculate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("rows: %d  updated: %d  unchanged: %d  skipped: %d  failed: %d\n",
		report.Total, report.Updated, report.Unchanged, report.Skipped, report.Failed)
	fmt.Printf("avg score: %.3f -> %.3f  avg coverage: %.3f  avg intensity: %.3f  (%s)\n",
		report.AvgOldScore, report.AvgNewScore, report.AvgCoverage, report.AvgIntensity, report.Duration)
	if req.DryRun {
		fmt.Println("dry run: nothing was written")
	}
	for _, e := range report.Errors {
		logger.Warn().Str("error", e).Msg("Row failed")
	}
	return nil
}
