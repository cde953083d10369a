// Package llm provides the vision-language model services: image
// description, translation, and filename suggestion against a local Ollama
// chat endpoint. Each call builds its prompt from the pipeline's
// accumulated context and degrades to a typed error on failure.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MathiasSchindler/commonsimagedescription/internal/geo"
	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
)

// Config holds model endpoint configuration.
type Config struct {
	// ChatURL is the Ollama chat completion endpoint.
	ChatURL string

	// VisionModel handles image description.
	VisionModel string

	// TranslationModel handles translation and filename suggestion.
	TranslationModel string

	// Vision inference is slow; its timeout is far above the text calls.
	VisionTimeout    time.Duration
	TranslateTimeout time.Duration
	FilenameTimeout  time.Duration
}

// Client issues chat requests to the model server.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *logger.Logger
}

// NewClient creates a new model client.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.VisionTimeout == 0 {
		cfg.VisionTimeout = 120 * time.Second
	}
	if cfg.TranslateTimeout == 0 {
		cfg.TranslateTimeout = 60 * time.Second
	}
	if cfg.FilenameTimeout == 0 {
		cfg.FilenameTimeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     log.WithField("component", "llm"),
	}
}

// VisionModel returns the configured vision model name.
func (c *Client) VisionModel() string {
	return c.cfg.VisionModel
}

// TranslationModel returns the configured translation model name.
func (c *Client) TranslationModel() string {
	return c.cfg.TranslationModel
}

// CallError reports a failed model call, carrying the model name so the
// boundary payload can identify which model was unreachable.
type CallError struct {
	Op    string
	Model string
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Model, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Message is one chat message in the Ollama wire format.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// chatRequest is the Ollama chat request body.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// chatResponse is the subset of the Ollama chat response the pipeline uses.
type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// chat performs one synchronous, non-streaming chat call and returns the
// model's reply together with the verbatim response body.
func (c *Client) chat(ctx context.Context, op, model, prompt string, images []string, timeout time.Duration) (string, json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []Message{{Role: "user", Content: prompt, Images: images}},
		Stream:   false,
	})
	if err != nil {
		return "", nil, &CallError{Op: op, Model: model, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChatURL, bytes.NewReader(payload))
	if err != nil {
		return "", nil, &CallError{Op: op, Model: model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, &CallError{Op: op, Model: model,
			Err: fmt.Errorf("failed to connect to model server, is it running? %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, &CallError{Op: op, Model: model,
			Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, &CallError{Op: op, Model: model, Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", nil, &CallError{Op: op, Model: model, Err: fmt.Errorf("decode response: %w", err)}
	}

	return parsed.Message.Content, raw, nil
}

// Description is the vision model's output for one image.
type Description struct {
	Text   string          `json:"description"`
	Model  string          `json:"model"`
	Prompt string          `json:"prompt"`
	Raw    json.RawMessage `json:"raw_response"`
}

// Describe produces one integrated sentence describing the image, biased by
// the reverse-geocoded location and nearby knowledge-graph places.
func (c *Client) Describe(ctx context.Context, image []byte, location *geo.GeocodeResult, places []geo.WikidataPlace) (*Description, error) {
	prompt := describePrompt(locationContext(location), places)

	c.logger.WithFields(map[string]interface{}{
		"model":  c.cfg.VisionModel,
		"bytes":  len(image),
		"places": len(places),
	}).Debug("requesting image description")

	encoded := base64.StdEncoding.EncodeToString(image)
	content, raw, err := c.chat(ctx, "describe", c.cfg.VisionModel, prompt, []string{encoded}, c.cfg.VisionTimeout)
	if err != nil {
		return nil, err
	}

	return &Description{
		Text:   trimContent(content),
		Model:  c.cfg.VisionModel,
		Prompt: prompt,
		Raw:    raw,
	}, nil
}

// Translate renders text into the target language, instructing the model to
// output the translation and nothing else.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	prompt := translatePrompt(text, targetLanguage)

	content, _, err := c.chat(ctx, "translate", c.cfg.TranslationModel, prompt, nil, c.cfg.TranslateTimeout)
	if err != nil {
		return "", err
	}
	return trimContent(content), nil
}

// SuggestFilename asks the model for a short descriptive phrase and returns
// it cleaned for filename use. Composition with the capture date is the
// caller's job via ComposeFilename.
func (c *Client) SuggestFilename(ctx context.Context, description string, location *geo.GeocodeResult) (string, error) {
	prompt := filenamePrompt(description, locationHint(location))

	content, _, err := c.chat(ctx, "suggest-filename", c.cfg.TranslationModel, prompt, nil, c.cfg.FilenameTimeout)
	if err != nil {
		return "", err
	}
	return CleanWords(content), nil
}
