package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MathiasSchindler/commonsimagedescription/internal/geo"
	"github.com/MathiasSchindler/commonsimagedescription/internal/llm"
	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metrics"
	"github.com/MathiasSchindler/commonsimagedescription/internal/response"
)

// Describer produces image descriptions.
type Describer interface {
	Describe(ctx context.Context, image []byte, location *geo.GeocodeResult, places []geo.WikidataPlace) (*llm.Description, error)
	VisionModel() string
}

// ImageReader loads a stored upload by name.
type ImageReader interface {
	Read(filename string) ([]byte, error)
}

// VisionHandler runs the vision model over a previously uploaded image.
type VisionHandler struct {
	describer Describer
	images    ImageReader
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewVisionHandler creates a new VisionHandler.
func NewVisionHandler(d Describer, images ImageReader, m *metrics.Metrics, log *logger.Logger) *VisionHandler {
	return &VisionHandler{
		describer: d,
		images:    images,
		metrics:   m,
		logger:    log.WithField("handler", "vision"),
	}
}

type visionRequest struct {
	Filename       string              `json:"filename"`
	EXIF           json.RawMessage     `json:"exif"`
	Location       *geo.GeocodeResult  `json:"location"`
	WikidataPlaces []geo.WikidataPlace `json:"wikidata_places"`
}

// visionFailure is the 200-status degraded payload: the client renders the
// error in place of the description.
type visionFailure struct {
	Description *string `json:"description"`
	Error       string  `json:"error"`
	Model       string  `json:"model"`
}

// Describe handles POST /upload/vision.
func (h *VisionHandler) Describe(w http.ResponseWriter, r *http.Request) {
	var req visionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Filename == "" {
		response.BadRequest(w, "No filename provided")
		return
	}

	image, err := h.images.Read(req.Filename)
	if err != nil {
		response.NotFound(w, "File not found")
		return
	}

	start := time.Now()
	desc, err := h.describer.Describe(r.Context(), image, req.Location, req.WikidataPlaces)
	observeModelCall(h.metrics, "describe", start, err)
	if err != nil {
		// A failed model call is a degraded result, not an HTTP error.
		h.logger.WithError(err).WithField("filename", req.Filename).Warn("vision analysis failed")
		response.OK(w, visionFailure{
			Error: err.Error(),
			Model: h.describer.VisionModel(),
		})
		return
	}

	response.OK(w, desc)
}
