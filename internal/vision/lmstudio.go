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

// LMStudioClient talks to an LM Studio server's OpenAI-compatible API.
type LMStudioClient struct {
	baseURL    string
	timeout    time.Duration
	maxTokens  int
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewLMStudioClient constructs a client with sane defaults.
func NewLMStudioClient(opts Options) *LMStudioClient {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &LMStudioClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		maxTokens:  maxTokens,
		httpClient: httpClientOrDefault(opts),
		logger:     loggerOrNop(opts),
	}
}

type lmStudioChatRequest struct {
	Model       string            `json:"model"`
	Messages    []lmStudioMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
}

type lmStudioMessage struct {
	Role    string            `json:"role"`
	Content []lmStudioContent `json:"content"`
}

type lmStudioContent struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *lmStudioImageURL `json:"image_url,omitempty"`
}

type lmStudioImageURL struct {
	URL string `json:"url"`
}

type lmStudioChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type lmStudioModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Generate performs a single captioning attempt against /v1/chat/completions.
func (c *LMStudioClient) Generate(ctx context.Context, req Request) (Result, error) {
	image, err := encodeImage(BackendLMStudio, req.ImagePath)
	if err != nil {
		return Result{}, err
	}

	payload := lmStudioChatRequest{
		Model: req.Model,
		Messages: []lmStudioMessage{{
			Role: "user",
			Content: []lmStudioContent{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &lmStudioImageURL{URL: "data:image/jpeg;base64," + image}},
			},
		}},
		MaxTokens:   c.maxTokens,
		Temperature: 0.3,
	}

	callCtx, cancel := callTimeout(ctx, c.timeout)
	defer cancel()

	body, err := postJSON(callCtx, c.httpClient, BackendLMStudio, c.baseURL+"/v1/chat/completions", payload)
	if err != nil {
		return Result{}, err
	}

	var resp lmStudioChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, permanentErr(BackendLMStudio, fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return Result{}, permanentErr(BackendLMStudio, fmt.Errorf("response contained no choices"))
	}

	caption, score, flags := parseCaptionResponse(resp.Choices[0].Message.Content)
	caption = applyTriggerPhrase(caption, req.TriggerPhrase)
	return Result{
		Caption:      caption,
		QualityScore: score,
		QualityFlags: flags,
		Model:        req.Model,
		Backend:      BackendLMStudio,
	}, nil
}

// ListModels returns the model ids the server has loaded.
func (c *LMStudioClient) ListModels(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var resp lmStudioModelsResponse
	if err := getJSON(callCtx, c.httpClient, BackendLMStudio, c.baseURL+"/v1/models", &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

var _ Client = (*LMStudioClient)(nil)
