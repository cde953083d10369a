// Package handlers provides the HTTP handlers for the enrichment server.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metrics"
	"github.com/MathiasSchindler/commonsimagedescription/internal/multipart"
	"github.com/MathiasSchindler/commonsimagedescription/internal/pipeline"
	"github.com/MathiasSchindler/commonsimagedescription/internal/response"
)

// UploadHandler accepts multipart image uploads and runs the enrichment
// pipeline over them.
type UploadHandler struct {
	pipeline *pipeline.Pipeline
	maxSize  int64
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(p *pipeline.Pipeline, maxSize int64, m *metrics.Metrics, log *logger.Logger) *UploadHandler {
	return &UploadHandler{
		pipeline: p,
		maxSize:  maxSize,
		metrics:  m,
		logger:   log.WithField("handler", "upload"),
	}
}

// Upload handles POST /upload.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxSize))
	if err != nil {
		h.count("bad_request")
		response.BadRequest(w, "request body too large or unreadable")
		return
	}

	result, err := h.pipeline.ProcessUpload(r.Context(), body, r.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, multipart.ErrNotMultipart):
			h.count("bad_request")
			response.BadRequest(w, "Expected multipart/form-data")
		case errors.Is(err, multipart.ErrMissingFile):
			h.count("bad_request")
			response.BadRequest(w, "No image file provided")
		default:
			h.count("failed")
			h.logger.WithError(err).Error("upload processing failed")
			response.InternalError(w, "failed to process upload")
		}
		return
	}

	h.count("success")
	response.OK(w, result)
}

func (h *UploadHandler) count(status string) {
	if h.metrics != nil {
		h.metrics.Uploads.WithLabelValues(status).Inc()
	}
}
