package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// OllamaClient talks to an Ollama server's chat API.
type OllamaClient struct {
	baseURL    string
	timeout    time.Duration
	maxTokens  int
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewOllamaClient constructs a client with sane defaults.
func NewOllamaClient(opts Options) *OllamaClient {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		maxTokens:  maxTokens,
		httpClient: httpClientOrDefault(opts),
		logger:     loggerOrNop(opts),
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Think    bool            `json:"think"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatResponse struct {
	Message struct {
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Generate performs a single captioning attempt against /api/chat.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (Result, error) {
	image, err := encodeImage(BackendOllama, req.ImagePath)
	if err != nil {
		return Result{}, err
	}

	payload := ollamaChatRequest{
		Model: req.Model,
		Messages: []ollamaMessage{{
			Role:    "user",
			Content: req.Prompt,
			Images:  []string{image},
		}},
		Stream: false,
		Think:  false,
		Options: ollamaOptions{
			Temperature: 0.3,
			NumPredict:  c.maxTokens,
		},
	}

	callCtx, cancel := callTimeout(ctx, c.timeout)
	defer cancel()

	body, err := postJSON(callCtx, c.httpClient, BackendOllama, c.baseURL+"/api/chat", payload)
	if err != nil {
		return Result{}, err
	}

	var resp ollamaChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, permanentErr(BackendOllama, fmt.Errorf("decode response: %w", err))
	}

	if resp.Message.Content == "" && resp.DoneReason == "length" {
		// Some models burn the whole token budget thinking even with
		// think=false requested.
		return Result{}, permanentErr(BackendOllama, fmt.Errorf("model exhausted tokens during thinking phase"))
	}
	if resp.Message.Thinking != "" {
		c.logger.Debug().Str("model", req.Model).Int("thinking_chars", len(resp.Message.Thinking)).
			Msg("model produced thinking output despite think=false")
	}

	caption, score, flags := parseCaptionResponse(resp.Message.Content)
	caption = applyTriggerPhrase(caption, req.TriggerPhrase)
	return Result{
		Caption:      caption,
		QualityScore: score,
		QualityFlags: flags,
		Model:        req.Model,
		Backend:      BackendOllama,
	}, nil
}

// ListModels returns the model names the server has pulled.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var resp ollamaTagsResponse
	if err := getJSON(callCtx, c.httpClient, BackendOllama, c.baseURL+"/api/tags", &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

var _ Client = (*OllamaClient)(nil)
