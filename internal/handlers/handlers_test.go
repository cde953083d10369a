package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	stdmultipart "mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/MathiasSchindler/commonsimagedescription/internal/geo"
	"github.com/MathiasSchindler/commonsimagedescription/internal/llm"
	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
	"github.com/MathiasSchindler/commonsimagedescription/internal/metadata"
	"github.com/MathiasSchindler/commonsimagedescription/internal/pipeline"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "disabled", Service: "test"})
}

// --- upload stubs ---

type memStore struct {
	files map[string][]byte
}

func (s *memStore) Save(name string, data []byte) (string, error) {
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	stored := "20251030_080142_" + name
	s.files[stored] = data
	return stored, nil
}

func (s *memStore) Path(filename string) (string, error) {
	if _, ok := s.files[filename]; !ok {
		return "", os.ErrNotExist
	}
	return "/uploads/" + filename, nil
}

type noExif struct{}

func (noExif) Extract(path string) (*metadata.Record, error) {
	return &metadata.Record{Tags: map[string]interface{}{}, GPS: map[string]interface{}{}}, nil
}

type noGeo struct{}

func (noGeo) ReverseGeocode(ctx context.Context, lat, lon float64) (*geo.GeocodeResult, error) {
	return nil, errors.New("unexpected call")
}

func (noGeo) SearchNearby(ctx context.Context, lat, lon float64, bearing *float64) (*geo.POIResult, error) {
	return nil, errors.New("unexpected call")
}

func uploadHandler() *UploadHandler {
	p := pipeline.New(&memStore{}, noExif{}, noGeo{}, nil, testLogger())
	return NewUploadHandler(p, 1<<20, nil, testLogger())
}

func multipartUpload(t *testing.T, filename string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := stdmultipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("jpeg-bytes"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+w.Boundary())
	return req
}

func TestUploadSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	uploadHandler().Upload(rec, multipartUpload(t, "photo.jpg"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp pipeline.UploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Filename != "20251030_080142_photo.jpg" {
		t.Errorf("response = %+v", resp)
	}
}

func TestUploadWrongContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	uploadHandler().Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadWithoutFilePart(t *testing.T) {
	var buf bytes.Buffer
	w := stdmultipart.NewWriter(&buf)
	fw, _ := w.CreateFormField("note")
	fw.Write([]byte("text only"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+w.Boundary())

	rec := httptest.NewRecorder()
	uploadHandler().Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No image file provided") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// --- vision stubs ---

type stubDescriber struct {
	desc *llm.Description
	err  error

	location *geo.GeocodeResult
	places   []geo.WikidataPlace
}

func (d *stubDescriber) Describe(ctx context.Context, image []byte, location *geo.GeocodeResult, places []geo.WikidataPlace) (*llm.Description, error) {
	d.location = location
	d.places = places
	return d.desc, d.err
}

func (d *stubDescriber) VisionModel() string { return "vision-test" }

type stubImages struct {
	files map[string][]byte
}

func (s *stubImages) Read(filename string) ([]byte, error) {
	data, ok := s.files[filename]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func visionRequestBody(filename string) *bytes.Reader {
	body, _ := json.Marshal(map[string]interface{}{
		"filename": filename,
		"location": map[string]interface{}{
			"api_url":      "https://nominatim.test/reverse",
			"api_response": map[string]string{"display_name": "Berlin"},
			"data":         map[string]interface{}{"address": map[string]string{"city": "Berlin"}},
		},
		"wikidata_places": []map[string]interface{}{
			{"label": "Brandenburg Gate", "distance_m": 120.4},
		},
	})
	return bytes.NewReader(body)
}

func TestVisionSuccess(t *testing.T) {
	describer := &stubDescriber{desc: &llm.Description{
		Text:   "A gate in Berlin.",
		Model:  "vision-test",
		Prompt: "prompt",
		Raw:    json.RawMessage(`{}`),
	}}
	images := &stubImages{files: map[string][]byte{"img.jpg": []byte("jpeg")}}
	h := NewVisionHandler(describer, images, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/upload/vision", visionRequestBody("img.jpg"))
	rec := httptest.NewRecorder()
	h.Describe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["description"] != "A gate in Berlin." {
		t.Errorf("description = %v", resp["description"])
	}
	if resp["model"] != "vision-test" {
		t.Errorf("model = %v", resp["model"])
	}

	// Context from the request body reached the model call.
	if describer.location == nil || describer.location.Data.Address.City != "Berlin" {
		t.Errorf("location = %+v", describer.location)
	}
	if len(describer.places) != 1 || describer.places[0].Label != "Brandenburg Gate" {
		t.Errorf("places = %+v", describer.places)
	}
}

func TestVisionModelFailure(t *testing.T) {
	describer := &stubDescriber{err: &llm.CallError{
		Op: "describe", Model: "vision-test", Err: errors.New("connection refused"),
	}}
	images := &stubImages{files: map[string][]byte{"img.jpg": []byte("jpeg")}}
	h := NewVisionHandler(describer, images, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/upload/vision", visionRequestBody("img.jpg"))
	rec := httptest.NewRecorder()
	h.Describe(rec, req)

	// Degraded, not an HTTP failure.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Description *string `json:"description"`
		Error       string  `json:"error"`
		Model       string  `json:"model"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Description != nil {
		t.Errorf("description = %v, want null", *resp.Description)
	}
	if resp.Error == "" {
		t.Error("error message missing")
	}
	if resp.Model != "vision-test" {
		t.Errorf("model = %q", resp.Model)
	}
}

func TestVisionMissingFilename(t *testing.T) {
	h := NewVisionHandler(&stubDescriber{}, &stubImages{}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/upload/vision", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Describe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestVisionUnknownFile(t *testing.T) {
	h := NewVisionHandler(&stubDescriber{}, &stubImages{}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/upload/vision", strings.NewReader(`{"filename":"gone.jpg"}`))
	rec := httptest.NewRecorder()
	h.Describe(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// --- translate stubs ---

type stubTranslator struct {
	out string
	err error
}

func (t *stubTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	return t.out, t.err
}

func (t *stubTranslator) TranslationModel() string { return "text-test" }

func TestTranslateSuccess(t *testing.T) {
	h := NewTranslateHandler(&stubTranslator{out: "Ein Hund."}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/translate",
		strings.NewReader(`{"text":"A dog.","language":"German"}`))
	rec := httptest.NewRecorder()
	h.Translate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp translateResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.Translation == nil || *resp.Translation != "Ein Hund." {
		t.Errorf("response = %+v", resp)
	}
	if resp.Language != "German" || resp.Model != "text-test" {
		t.Errorf("response = %+v", resp)
	}
}

func TestTranslateMissingFields(t *testing.T) {
	h := NewTranslateHandler(&stubTranslator{}, nil, testLogger())

	for _, body := range []string{`{"text":"A dog."}`, `{"language":"German"}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/translate", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Translate(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestTranslateFailure(t *testing.T) {
	h := NewTranslateHandler(&stubTranslator{err: errors.New("model offline")}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/translate",
		strings.NewReader(`{"text":"A dog.","language":"German"}`))
	rec := httptest.NewRecorder()
	h.Translate(rec, req)

	// Degraded, not an HTTP error.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"translation":null`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// --- filename stubs ---

type stubSuggester struct {
	words string
	err   error
}

func (s *stubSuggester) SuggestFilename(ctx context.Context, description string, location *geo.GeocodeResult) (string, error) {
	return s.words, s.err
}

func (s *stubSuggester) TranslationModel() string { return "text-test" }

func TestSuggestFilenameSuccess(t *testing.T) {
	h := NewFilenameHandler(&stubSuggester{words: "red fox in snow"}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/suggest-filename",
		strings.NewReader(`{"description":"A red fox.","date":"2025-10-30 08-01-42"}`))
	rec := httptest.NewRecorder()
	h.Suggest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp filenameResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Filename != "red fox in snow 2025-10-30.jpg" {
		t.Errorf("filename = %q", resp.Filename)
	}
	if !resp.Success || resp.Model != "text-test" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSuggestFilenameFallback(t *testing.T) {
	h := NewFilenameHandler(&stubSuggester{err: errors.New("model offline")}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/suggest-filename",
		strings.NewReader(`{"description":"A red fox.","date":"2025-10-30 08-01-42"}`))
	rec := httptest.NewRecorder()
	h.Suggest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("a failed suggestion must degrade, status = %d", rec.Code)
	}
	var resp filenameResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Filename != "image 2025-10-30.jpg" {
		t.Errorf("fallback filename = %q, want %q", resp.Filename, "image 2025-10-30.jpg")
	}
}

func TestSuggestFilenameMissingDescription(t *testing.T) {
	h := NewFilenameHandler(&stubSuggester{}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/suggest-filename", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Suggest(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- wikidata stubs ---

type stubQuerier struct {
	res    *geo.WikidataResult
	err    error
	radius float64
}

func (q *stubQuerier) QueryWikidata(ctx context.Context, lat, lon, radiusKm float64) (*geo.WikidataResult, error) {
	q.radius = radiusKm
	return q.res, q.err
}

func TestWikidataQuery(t *testing.T) {
	query := "SELECT ..."
	querier := &stubQuerier{res: &geo.WikidataResult{
		Places: []geo.WikidataPlace{{Label: "Berlin", WikidataID: "Q64"}},
		Query:  &query,
	}}
	h := NewWikidataHandler(querier, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/wikidata-pois",
		strings.NewReader(`{"lat":52.5,"lon":13.4}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if querier.radius != 1.0 {
		t.Errorf("default radius = %v, want 1", querier.radius)
	}
	var resp wikidataResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.Wikidata == nil || len(resp.Wikidata.Places) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestWikidataQueryCustomRadius(t *testing.T) {
	querier := &stubQuerier{res: &geo.WikidataResult{Places: []geo.WikidataPlace{}}}
	h := NewWikidataHandler(querier, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/wikidata-pois",
		strings.NewReader(`{"lat":52.5,"lon":13.4,"radius":2.5}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	if querier.radius != 2.5 {
		t.Errorf("radius = %v, want 2.5", querier.radius)
	}
}

func TestWikidataQueryMissingCoordinates(t *testing.T) {
	h := NewWikidataHandler(&stubQuerier{}, nil, testLogger())

	for _, body := range []string{`{"lat":52.5}`, `{"lon":13.4}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/wikidata-pois", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Query(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestWikidataQueryDegraded(t *testing.T) {
	msg := "unexpected status: 503"
	querier := &stubQuerier{
		res: &geo.WikidataResult{Places: []geo.WikidataPlace{}, Error: &msg},
		err: errors.New(msg),
	}
	h := NewWikidataHandler(querier, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/wikidata-pois",
		strings.NewReader(`{"lat":52.5,"lon":13.4}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("failed query must still answer 200, got %d", rec.Code)
	}
	var resp wikidataResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Wikidata == nil || resp.Wikidata.Error == nil {
		t.Errorf("degraded payload missing error: %+v", resp.Wikidata)
	}
}

func TestHealth(t *testing.T) {
	dir := t.TempDir()
	h := Health(dir)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	h = Health(dir + "/missing")
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", rec.Code)
	}
}
