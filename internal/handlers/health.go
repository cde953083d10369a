package handlers

import (
	"net/http"
	"os"

	"github.com/MathiasSchindler/commonsimagedescription/internal/response"
)

// HealthResponse represents health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Uploads string `json:"uploads"`
}

// Health returns a health check handler. It verifies the upload directory
// is present and writable enough to stat.
func Health(uploadDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Uploads: "ok",
		}

		if info, err := os.Stat(uploadDir); err != nil || !info.IsDir() {
			resp.Status = "degraded"
			resp.Uploads = "error"
		}

		if resp.Status == "ok" {
			response.OK(w, resp)
		} else {
			response.JSON(w, http.StatusServiceUnavailable, resp)
		}
	}
}
