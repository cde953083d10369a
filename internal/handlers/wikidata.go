package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MathiasSchindler/commonsimagedescription/internal/geo"
	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metrics"
	"github.com/MathiasSchindler/commonsimagedescription/internal/response"
)

// WikidataQuerier runs the SPARQL proximity query.
type WikidataQuerier interface {
	QueryWikidata(ctx context.Context, lat, lon, radiusKm float64) (*geo.WikidataResult, error)
}

// WikidataHandler serves nearby knowledge-graph places for a GPS fix.
type WikidataHandler struct {
	querier WikidataQuerier
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewWikidataHandler creates a new WikidataHandler.
func NewWikidataHandler(q WikidataQuerier, m *metrics.Metrics, log *logger.Logger) *WikidataHandler {
	return &WikidataHandler{
		querier: q,
		metrics: m,
		logger:  log.WithField("handler", "wikidata"),
	}
}

type wikidataRequest struct {
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Radius *float64 `json:"radius"`
}

type wikidataResponse struct {
	Success  bool                `json:"success"`
	Wikidata *geo.WikidataResult `json:"wikidata"`
}

// Query handles POST /wikidata-pois. Failed queries still answer 200: the
// result payload carries the query text and error message for the client.
func (h *WikidataHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req wikidataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		response.BadRequest(w, "Missing lat or lon coordinates")
		return
	}

	radius := 1.0
	if req.Radius != nil {
		radius = *req.Radius
	}

	result, err := h.querier.QueryWikidata(r.Context(), *req.Lat, *req.Lon, radius)
	h.countQuery(err)
	if err != nil {
		h.logger.WithError(err).Warn("wikidata query failed")
	}

	response.OK(w, wikidataResponse{Success: true, Wikidata: result})
}

func (h *WikidataHandler) countQuery(err error) {
	if h.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	h.metrics.EnrichmentCalls.WithLabelValues("wikidata", status).Inc()
}
