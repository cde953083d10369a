// Package main is the entry point for the Commons image description server.
// It initializes all dependencies and starts the HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MathiasSchindler/commonsimagedescription/internal/config"
	"github.com/MathiasSchindler/commonsimagedescription/internal/geo"
	"github.com/MathiasSchindler/commonsimagedescription/internal/llm"
	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metadata"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metrics"
	"github.com/MathiasSchindler/commonsimagedescription/internal/pipeline"
	"github.com/MathiasSchindler/commonsimagedescription/internal/server"
	"github.com/MathiasSchindler/commonsimagedescription/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:   "server",
		Short: "Image upload and description server for Wikimedia Commons contributions",
		Long: "Accepts image uploads, extracts EXIF metadata, enriches GPS fixes with " +
			"Nominatim and Wikidata, and generates descriptions, translations and " +
			"filename suggestions with local language models.",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "commons-image-description",
	})

	log.Info("starting image description server")

	m := metrics.New()
	store := storage.New(cfg.UploadDir, log)
	extractor := metadata.NewExtractor(log)

	geoClient := geo.NewClient(geo.Config{
		BaseURL:        cfg.NominatimBaseURL,
		SPARQLEndpoint: cfg.WikidataEndpoint,
		UserAgent:      cfg.UserAgent,
		GeocodeTimeout: cfg.GeocodeTimeout,
		POITimeout:     cfg.POITimeout,
		SPARQLTimeout:  cfg.WikidataTimeout,
	}, log)

	llmClient := llm.NewClient(llm.Config{
		ChatURL:          cfg.OllamaURL,
		VisionModel:      cfg.VisionModel,
		TranslationModel: cfg.TranslationModel,
		VisionTimeout:    cfg.VisionTimeout,
		TranslateTimeout: cfg.TranslateTimeout,
		FilenameTimeout:  cfg.FilenameTimeout,
	}, log)

	p := pipeline.New(store, extractor, geoClient, m, log)

	router := server.NewRouter(&server.Dependencies{
		Config:   cfg,
		Logger:   log,
		Pipeline: p,
		Geo:      geoClient,
		LLM:      llmClient,
		Store:    store,
		Metrics:  m,
	})

	srv := server.New(cfg, router, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	log.WithFields(map[string]interface{}{
		"port":              cfg.Port,
		"upload_dir":        cfg.UploadDir,
		"vision_model":      cfg.VisionModel,
		"translation_model": cfg.TranslationModel,
	}).Info("server started")

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("received shutdown signal")
	case err := <-errChan:
		log.WithError(err).Error("server error")
		return err
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}
