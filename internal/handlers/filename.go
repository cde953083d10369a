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

// Suggester proposes filename words for a description.
type Suggester interface {
	SuggestFilename(ctx context.Context, description string, location *geo.GeocodeResult) (string, error)
	TranslationModel() string
}

// FilenameHandler suggests Wikimedia Commons filenames.
type FilenameHandler struct {
	suggester Suggester
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewFilenameHandler creates a new FilenameHandler.
func NewFilenameHandler(s Suggester, m *metrics.Metrics, log *logger.Logger) *FilenameHandler {
	return &FilenameHandler{
		suggester: s,
		metrics:   m,
		logger:    log.WithField("handler", "filename"),
	}
}

type filenameRequest struct {
	Description string             `json:"description"`
	Date        string             `json:"date"`
	Location    *geo.GeocodeResult `json:"location"`
}

type filenameResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Model    string `json:"model"`
}

// Suggest handles POST /suggest-filename. A failed model call degrades to
// the date-based fallback name instead of an error.
func (h *FilenameHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req filenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Description == "" {
		response.BadRequest(w, "Missing description")
		return
	}

	start := time.Now()
	words, err := h.suggester.SuggestFilename(r.Context(), req.Description, req.Location)
	observeModelCall(h.metrics, "suggest_filename", start, err)
	if err != nil {
		h.logger.WithError(err).Warn("filename suggestion failed, using fallback")
		words = ""
	}

	response.OK(w, filenameResponse{
		Success:  true,
		Filename: llm.ComposeFilename(words, req.Date),
		Model:    h.suggester.TranslationModel(),
	})
}
