package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/medixcare/pharmacy-api/pkg/circuitbreaker"
)

// ProviderResult is the raw provider response. The provider's own
// confidence signal is advisory only; the service derives the confidence
// it persists.
type ProviderResult struct {
	Text          string  `json:"text"`
	RawConfidence float64 `json:"confidence"`
}

// Provider turns file bytes into raw text. Implementations may fail or time
// out; the service recovers with a degraded result.
type Provider interface {
	Extract(ctx context.Context, fileBytes []byte, mimeType string) (*ProviderResult, error)
}

type HTTPProviderConfig struct {
	Endpoint       string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// HTTPProvider posts files to an OCR sidecar over multipart HTTP. Calls are
// rate limited to bound load on the backend and wrapped in a circuit
// breaker so a dead backend fails fast instead of eating the full timeout
// on every file.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
}

func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &HTTPProvider{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "ocr-provider",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

func (p *HTTPProvider) Extract(ctx context.Context, fileBytes []byte, mimeType string) (*ProviderResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	var result *ProviderResult
	err := p.breaker.Execute(func() error {
		var callErr error
		result, callErr = p.call(ctx, fileBytes, mimeType)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *HTTPProvider) call(ctx context.Context, fileBytes []byte, mimeType string) (*ProviderResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "prescription")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(part, bytes.NewReader(fileBytes)); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := writer.WriteField("mime_type", mimeType); err != nil {
		return nil, fmt.Errorf("failed to write mime type field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	path := "/extract-text"
	if mimeType == "application/pdf" {
		// PDFs get rasterized server-side before the image pipeline.
		path = "/extract-pdf"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call OCR provider: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCR provider returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	var result ProviderResult
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to parse OCR response: %w", err)
	}
	if result.Text == "" {
		return nil, fmt.Errorf("OCR provider returned empty text")
	}
	return &result, nil
}
