package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metrics"
	"github.com/MathiasSchindler/commonsimagedescription/internal/response"
)

// Translator renders text into a target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	TranslationModel() string
}

// TranslateHandler translates a description into another language.
type TranslateHandler struct {
	translator Translator
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// NewTranslateHandler creates a new TranslateHandler.
func NewTranslateHandler(t Translator, m *metrics.Metrics, log *logger.Logger) *TranslateHandler {
	return &TranslateHandler{
		translator: t,
		metrics:    m,
		logger:     log.WithField("handler", "translate"),
	}
}

type translateRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type translateResponse struct {
	Success     bool    `json:"success"`
	Translation *string `json:"translation"`
	Language    string  `json:"language"`
	Model       string  `json:"model"`
}

// Translate handles POST /translate.
func (h *TranslateHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Text == "" || req.Language == "" {
		response.BadRequest(w, "Missing text or language")
		return
	}

	start := time.Now()
	translation, err := h.translator.Translate(r.Context(), req.Text, req.Language)
	observeModelCall(h.metrics, "translate", start, err)

	resp := translateResponse{
		Success:  true,
		Language: req.Language,
		Model:    h.translator.TranslationModel(),
	}
	if err != nil {
		// A failed model call degrades to a null translation.
		h.logger.WithError(err).WithField("language", req.Language).Warn("translation failed")
	} else {
		resp.Translation = &translation
	}

	response.OK(w, resp)
}
