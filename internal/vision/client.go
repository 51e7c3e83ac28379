package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Captioner is the capability the job runner consumes: one image plus one
// prompt in, one structured caption out. Implementations perform exactly one
// attempt and classify failures; retry policy lives in the caller.
type Captioner interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Client is a full backend adapter: captioning plus model discovery.
type Client interface {
	Captioner
	ListModels(ctx context.Context) ([]string, error)
}

// Options configures a backend client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
	// HTTPClient may carry a custom transport; a default client is used
	// when nil.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// NewClient constructs the adapter for the requested backend kind.
func NewClient(backend Backend, opts Options) (Client, error) {
	switch backend {
	case BackendOllama:
		return NewOllamaClient(opts), nil
	case BackendLMStudio:
		return NewLMStudioClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown vision backend %q", backend)
	}
}

func httpClientOrDefault(opts Options) *http.Client {
	if opts.HTTPClient != nil {
		return opts.HTTPClient
	}
	return &http.Client{}
}

func loggerOrNop(opts Options) zerolog.Logger {
	if opts.Logger != nil {
		return *opts.Logger
	}
	return zerolog.Nop()
}

// encodeImage reads and base64-encodes an image file. An unreadable image is
// a permanent failure.
func encodeImage(backend Backend, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", permanentErr(backend, fmt.Errorf("read image: %w", err))
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// callTimeout bounds ctx by the per-call timeout when one is configured.
func callTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// postJSON sends a JSON payload and returns the response body. Transport
// failures (timeouts, refused connections) are transient; 5xx is transient,
// any other non-200 status is permanent.
func postJSON(ctx context.Context, client *http.Client, backend Backend, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, permanentErr(backend, fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, permanentErr(backend, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, transientErr(backend, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientErr(backend, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("api status %d: %s", resp.StatusCode, truncateBody(respBody))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, transientErr(backend, statusErr)
		}
		return nil, permanentErr(backend, statusErr)
	}
	return respBody, nil
}

func getJSON(ctx context.Context, client *http.Client, backend Backend, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return permanentErr(backend, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return transientErr(backend, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return transientErr(backend, fmt.Errorf("api status %d", resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
