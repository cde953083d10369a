// Package pipeline orchestrates the upload flow: multipart decoding, file
// storage, EXIF extraction and geographic enrichment. Every enrichment stage
// is isolated so one failing remote call never voids the rest of the result.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MathiasSchindler/commonsimagedescription/internal/geo"
	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metadata"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metrics"
	"github.com/MathiasSchindler/commonsimagedescription/internal/multipart"
)

// Store persists uploads and resolves stored names back to paths.
type Store interface {
	Save(originalName string, data []byte) (string, error)
	Path(filename string) (string, error)
}

// Extractor reads image metadata from a stored file.
type Extractor interface {
	Extract(path string) (*metadata.Record, error)
}

// Geocoder performs the Nominatim lookups for a GPS fix.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*geo.GeocodeResult, error)
	SearchNearby(ctx context.Context, lat, lon float64, bearing *float64) (*geo.POIResult, error)
}

// UploadResult is the boundary payload for one processed upload. Vision is
// always null here; the client requests the description separately once it
// has rendered the metadata.
type UploadResult struct {
	Success         bool                   `json:"success"`
	Filename        string                 `json:"filename"`
	EXIF            map[string]interface{} `json:"exif"`
	Location        *geo.GeocodeResult     `json:"location"`
	POIs            *geo.POIResult         `json:"pois"`
	CameraDirection *float64               `json:"camera_direction"`
	Vision          interface{}            `json:"vision"`
}

// Pipeline wires the upload stages together.
type Pipeline struct {
	store     Store
	extractor Extractor
	geo       Geocoder
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// New creates a pipeline. Metrics may be nil.
func New(store Store, extractor Extractor, geocoder Geocoder, m *metrics.Metrics, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		extractor: extractor,
		geo:       geocoder,
		metrics:   m,
		logger:    log.WithField("component", "pipeline"),
	}
}

// ProcessUpload decodes a multipart request body, stores the image, extracts
// its metadata and, when the image carries a GPS fix, enriches it with
// location and nearby POIs. Decode and storage failures are returned as
// errors; everything downstream degrades inside the result.
func (p *Pipeline) ProcessUpload(ctx context.Context, body []byte, contentType string) (*UploadResult, error) {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.UploadDuration.Observe(time.Since(start).Seconds())
		}
	}()

	boundary, err := multipart.Boundary(contentType)
	if err != nil {
		return nil, err
	}
	name, data, err := multipart.Decode(body, boundary)
	if err != nil {
		return nil, err
	}

	stored, err := p.store.Save(name, data)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{Success: true, Filename: stored}

	record, err := p.extractRecord(stored)
	if err != nil {
		// Images without readable EXIF are still valid uploads.
		p.logger.WithError(err).WithField("filename", stored).Warn("exif extraction failed")
		result.EXIF = map[string]interface{}{"error": err.Error()}
		return result, nil
	}
	result.EXIF = record.Payload()

	if !record.HasGPS() {
		p.logger.WithField("filename", stored).Debug("no gps fix, skipping enrichment")
		return result, nil
	}

	result.CameraDirection = record.Bearing
	lat, lon := *record.Latitude, *record.Longitude

	result.Location = p.locate(ctx, lat, lon)
	result.POIs = p.nearby(ctx, lat, lon, record.Bearing)
	return result, nil
}

func (p *Pipeline) extractRecord(stored string) (*metadata.Record, error) {
	path, err := p.store.Path(stored)
	if err != nil {
		return nil, err
	}
	return p.extractor.Extract(path)
}

// locate runs the reverse geocode. On failure the payload keeps the request
// URL and error message so the client can show what was attempted.
func (p *Pipeline) locate(ctx context.Context, lat, lon float64) *geo.GeocodeResult {
	res, err := p.geo.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		p.countEnrichment("geocode", "failed")
		p.logger.WithError(err).Warn("reverse geocoding failed")
		return &geo.GeocodeResult{
			APIURL: callURL(err),
			Raw:    errorBody(err),
		}
	}
	p.countEnrichment("geocode", "success")
	return res
}

// nearby runs the POI search. On failure the payload carries an empty POI
// list rather than a null one.
func (p *Pipeline) nearby(ctx context.Context, lat, lon float64, bearing *float64) *geo.POIResult {
	res, err := p.geo.SearchNearby(ctx, lat, lon, bearing)
	if err != nil {
		p.countEnrichment("pois", "failed")
		p.logger.WithError(err).Warn("poi search failed")
		return &geo.POIResult{
			POIs:   []geo.POI{},
			APIURL: callURL(err),
			Raw:    errorBody(err),
		}
	}
	p.countEnrichment("pois", "success")
	return res
}

func (p *Pipeline) countEnrichment(service, status string) {
	if p.metrics != nil {
		p.metrics.EnrichmentCalls.WithLabelValues(service, status).Inc()
	}
}

// callURL recovers the request URL from a failed enrichment call.
func callURL(err error) string {
	var callErr *geo.CallError
	if errors.As(err, &callErr) {
		return callErr.URL
	}
	return ""
}

// errorBody renders an error as the api_response object of a failed stage.
func errorBody(err error) json.RawMessage {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return body
}
