package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridata/surveyguard/internal/aggregate"
	"github.com/veridata/surveyguard/internal/api"
	"github.com/veridata/surveyguard/internal/clock"
	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/fraud"
	"github.com/veridata/surveyguard/internal/logging"
	"github.com/veridata/surveyguard/internal/metrics"
	"github.com/veridata/surveyguard/internal/scoring"
	"github.com/veridata/surveyguard/internal/settings"
	"github.com/veridata/surveyguard/internal/store"
	"github.com/veridata/surveyguard/internal/textquality"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the surveyguard server",
	Long:  `Starts the scoring server and begins accepting session telemetry.`,
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal("create data directory", zap.Error(err))
	}

	db, err := store.New(cfg.DataDir + "/surveyguard.db")
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer db.Close()

	// Stored threshold overrides are overlaid onto a clone and published as
	// an immutable snapshot; later updates swap in fresh snapshots.
	settingsSvc := settings.New(db.Conn())
	cfgStore := config.NewStore(cfg)
	overlay := cfgStore.Base()
	settingsSvc.ApplyTo(overlay)
	cfgStore.Swap(overlay)

	resolver, err := fraud.NewMaxMindResolver(cfg.GeoIPPath)
	if err != nil {
		logger.Warn("geoip database unavailable, geo component degrades to 0",
			zap.String("path", cfg.GeoIPPath), zap.Error(err))
		resolver, _ = fraud.NewMaxMindResolver("")
	}
	defer resolver.Close()

	var classifier textquality.TextClassifier = textquality.Disabled{}
	if cfg.TextClassifierURL != "" {
		classifier = textquality.NewHTTPClassifier(cfg.TextClassifierURL,
			cfg.ClassifierTimeout(), cfg.TextClassifierRetries)
	} else {
		logger.Warn("no text classifier configured, text scoring disabled")
	}

	m := metrics.New()
	textAnalyzer := textquality.NewAnalyzer(cfgStore, classifier, logger)
	fraudAnalyzer := fraud.New(cfgStore, db, resolver, logger)
	scorer := scoring.NewService(cfgStore, db, textAnalyzer, fraudAnalyzer, clock.System{}, m, logger)
	aggregator := aggregate.New(db, cfgStore)
	fingerprinter := fraud.NewFingerprinter(cfg.FingerprintSecret)

	router := api.NewRouter(api.Deps{
		Cfg:           cfgStore,
		DB:            db,
		Scorer:        scorer,
		Aggregator:    aggregator,
		Settings:      settingsSvc,
		Fingerprinter: fingerprinter,
		Metrics:       m,
		Log:           logger,
	})

	// Retention cleanup once a day when enabled.
	if cfg.RetentionDays > 0 {
		go func() {
			runRetention(db, cfg.RetentionDays, logger)
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				runRetention(db, cfg.RetentionDays, logger)
			}
		}()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info("surveyguard listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("version", Version))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func runRetention(db *store.DB, days int, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed, err := db.CleanupOldSessions(ctx, days)
	if err != nil {
		logger.Error("retention cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("retention cleanup", zap.Int64("sessions_removed", removed))
	}
}
