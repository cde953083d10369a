package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MathiasSchindler/commonsimagedescription/internal/geo"
	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "disabled", Service: "test"})
}

func testLLMClient(chatURL string) *Client {
	return NewClient(Config{
		ChatURL:          chatURL,
		VisionModel:      "vision-test",
		TranslationModel: "text-test",
		VisionTimeout:    2 * time.Second,
		TranslateTimeout: 2 * time.Second,
		FilenameTimeout:  2 * time.Second,
	}, testLogger())
}

// fakeOllama answers every chat request with the given content and captures
// the last request body.
func fakeOllama(t *testing.T, content string, lastReq *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(lastReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":   lastReq.Model,
			"message": map[string]string{"role": "assistant", "content": content},
		})
	}))
}

func berlinLocation() *geo.GeocodeResult {
	return &geo.GeocodeResult{
		Data: &geo.ReverseGeocode{
			Address: geo.Address{City: "Berlin", Country: "Germany"},
		},
	}
}

func TestDescribe(t *testing.T) {
	var req chatRequest
	srv := fakeOllama(t, "  A Ryanair airplane at Terminal 2 of Berlin Brandenburg Airport.  ", &req)
	defer srv.Close()

	image := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	places := []geo.WikidataPlace{
		{Label: "Berlin Brandenburg Airport", InstanceOf: "international airport",
			Description: "airport serving Berlin", DistanceM: 120.4},
	}

	c := testLLMClient(srv.URL)
	desc, err := c.Describe(context.Background(), image, berlinLocation(), places)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	if req.Model != "vision-test" {
		t.Errorf("model = %q", req.Model)
	}
	if req.Stream {
		t.Error("request must not stream")
	}
	if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
		t.Fatalf("messages = %+v", req.Messages)
	}
	decoded, err := base64.StdEncoding.DecodeString(req.Messages[0].Images[0])
	if err != nil || string(decoded) != string(image) {
		t.Errorf("image payload did not round-trip: %v", err)
	}

	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, "This photo was taken in Berlin, Germany.") {
		t.Errorf("prompt missing location context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "1. Berlin Brandenburg Airport (international airport) - airport serving Berlin [120.4m away]") {
		t.Errorf("prompt missing place line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "IMPORTANT:") {
		t.Errorf("prompt missing naming instruction:\n%s", prompt)
	}

	if desc.Text != "A Ryanair airplane at Terminal 2 of Berlin Brandenburg Airport." {
		t.Errorf("description = %q", desc.Text)
	}
	if desc.Model != "vision-test" {
		t.Errorf("model = %q", desc.Model)
	}
	if desc.Prompt != prompt {
		t.Error("result must carry the prompt that produced it")
	}
	if len(desc.Raw) == 0 {
		t.Error("result must carry the raw response")
	}
}

func TestDescribeWithoutContext(t *testing.T) {
	var req chatRequest
	srv := fakeOllama(t, "A dog on a beach.", &req)
	defer srv.Close()

	c := testLLMClient(srv.URL)
	if _, err := c.Describe(context.Background(), []byte{1}, nil, nil); err != nil {
		t.Fatalf("Describe: %v", err)
	}

	prompt := req.Messages[0].Content
	if strings.Contains(prompt, "This photo was taken in") {
		t.Errorf("prompt has location context without a geocode:\n%s", prompt)
	}
	if strings.Contains(prompt, "nearby") {
		t.Errorf("prompt has place context without places:\n%s", prompt)
	}
}

func TestDescribePlaceLimit(t *testing.T) {
	var req chatRequest
	srv := fakeOllama(t, "ok", &req)
	defer srv.Close()

	places := make([]geo.WikidataPlace, 15)
	for i := range places {
		places[i] = geo.WikidataPlace{Label: "Place", DistanceM: float64(i)}
	}

	c := testLLMClient(srv.URL)
	if _, err := c.Describe(context.Background(), []byte{1}, nil, places); err != nil {
		t.Fatalf("Describe: %v", err)
	}

	prompt := req.Messages[0].Content
	if strings.Contains(prompt, "11. ") {
		t.Errorf("prompt lists more than %d places:\n%s", describeContextLimit, prompt)
	}
	if !strings.Contains(prompt, "10. ") {
		t.Errorf("prompt lists fewer than %d places:\n%s", describeContextLimit, prompt)
	}
}

func TestDescribeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := testLLMClient(srv.URL)
	_, err := c.Describe(context.Background(), []byte{1}, nil, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error type = %T, want *CallError", err)
	}
	if callErr.Model != "vision-test" {
		t.Errorf("CallError model = %q, want the configured vision model", callErr.Model)
	}
	if callErr.Error() == "" {
		t.Error("CallError must render a message")
	}
}

func TestTranslate(t *testing.T) {
	var req chatRequest
	srv := fakeOllama(t, "Ein Hund am Strand.\n", &req)
	defer srv.Close()

	c := testLLMClient(srv.URL)
	got, err := c.Translate(context.Background(), "A dog on a beach.", "German")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Ein Hund am Strand." {
		t.Errorf("translation = %q", got)
	}
	if req.Model != "text-test" {
		t.Errorf("model = %q", req.Model)
	}
	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, "from English to German") {
		t.Errorf("prompt missing target language:\n%s", prompt)
	}
	if !strings.HasSuffix(prompt, "A dog on a beach.") {
		t.Errorf("prompt must end with the source text:\n%s", prompt)
	}
	if len(req.Messages[0].Images) != 0 {
		t.Error("translation request must not carry images")
	}
}

func TestSuggestFilename(t *testing.T) {
	var req chatRequest
	srv := fakeOllama(t, `"Ryanair-Airplane at Brandenburg Airport"<end_of_turn>`, &req)
	defer srv.Close()

	c := testLLMClient(srv.URL)
	got, err := c.SuggestFilename(context.Background(), "An airplane at an airport.", berlinLocation())
	if err != nil {
		t.Fatalf("SuggestFilename: %v", err)
	}
	if got != "ryanair airplane at brandenburg airport" {
		t.Errorf("cleaned words = %q", got)
	}
	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, `"An airplane at an airport."`) {
		t.Errorf("prompt missing description:\n%s", prompt)
	}
	if !strings.Contains(prompt, "The photo was taken in Berlin.") {
		t.Errorf("prompt missing location hint:\n%s", prompt)
	}
	if req.Model != "text-test" {
		t.Errorf("model = %q", req.Model)
	}
}

func TestSuggestFilenameCountryHint(t *testing.T) {
	var req chatRequest
	srv := fakeOllama(t, "a field", &req)
	defer srv.Close()

	loc := &geo.GeocodeResult{
		Data: &geo.ReverseGeocode{Address: geo.Address{Country: "Germany"}},
	}

	c := testLLMClient(srv.URL)
	if _, err := c.SuggestFilename(context.Background(), "A field.", loc); err != nil {
		t.Fatalf("SuggestFilename: %v", err)
	}
	if !strings.Contains(req.Messages[0].Content, "The photo was taken in Germany.") {
		t.Errorf("prompt missing country fallback hint:\n%s", req.Messages[0].Content)
	}
}

func TestCleanWords(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Red Fox In Snow", "red fox in snow"},
		{"red-fox-in-snow", "red fox in snow"},
		{`"red fox."`, "red fox"},
		{"red fox<end_of_turn>", "red fox"},
		{"red fox</s>", "red fox"},
		{"  red   fox  ", "red fox"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanWords(tt.in); got != tt.want {
			t.Errorf("CleanWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComposeFilename(t *testing.T) {
	tests := []struct {
		name  string
		words string
		date  string
		want  string
	}{
		{"words and date", "red fox in snow", "2025-10-30 08-01-42", "red fox in snow 2025-10-30.jpg"},
		{"words only", "red fox in snow", "", "red fox in snow.jpg"},
		{"date only", "", "2025-10-30 08-01-42", "image 2025-10-30.jpg"},
		{"date without time", "", "2025-10-30", "image 2025-10-30.jpg"},
		{"neither", "", "", "image.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeFilename(tt.words, tt.date); got != tt.want {
				t.Errorf("ComposeFilename(%q, %q) = %q, want %q", tt.words, tt.date, got, tt.want)
			}
		})
	}
}
