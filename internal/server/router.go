package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/MathiasSchindler/commonsimagedescription/internal/config"
	"github.com/MathiasSchindler/commonsimagedescription/internal/geo"
	"github.com/MathiasSchindler/commonsimagedescription/internal/handlers"
	"github.com/MathiasSchindler/commonsimagedescription/internal/llm"
	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metrics"
	"github.com/MathiasSchindler/commonsimagedescription/internal/pipeline"
	"github.com/MathiasSchindler/commonsimagedescription/internal/storage"
)

// Dependencies holds all handler dependencies.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pipeline *pipeline.Pipeline
	Geo      *geo.Client
	LLM      *llm.Client
	Store    *storage.Store
	Metrics  *metrics.Metrics
}

// NewRouter creates and configures the HTTP router with all routes.
func NewRouter(deps *Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(Recovery(deps.Logger))
	r.Use(RequestID)
	r.Use(Logger(deps.Logger))
	// The frontend may be served from another origin during development.
	r.Use(cors.AllowAll().Handler)

	r.Get("/health", handlers.Health(deps.Config.UploadDir))
	r.Handle("/metrics", promhttp.Handler())

	uploadHandler := handlers.NewUploadHandler(deps.Pipeline, deps.Config.MaxUploadSize, deps.Metrics, deps.Logger)
	visionHandler := handlers.NewVisionHandler(deps.LLM, deps.Store, deps.Metrics, deps.Logger)
	translateHandler := handlers.NewTranslateHandler(deps.LLM, deps.Metrics, deps.Logger)
	filenameHandler := handlers.NewFilenameHandler(deps.LLM, deps.Metrics, deps.Logger)
	wikidataHandler := handlers.NewWikidataHandler(deps.Geo, deps.Metrics, deps.Logger)

	r.Post("/upload", uploadHandler.Upload)
	r.Post("/upload/vision", visionHandler.Describe)
	r.Post("/translate", translateHandler.Translate)
	r.Post("/suggest-filename", filenameHandler.Suggest)
	r.Post("/wikidata-pois", wikidataHandler.Query)

	// Static frontend files; "/" serves index.html.
	r.NotFound(http.FileServer(http.Dir(deps.Config.StaticDir)).ServeHTTP)

	return r
}
