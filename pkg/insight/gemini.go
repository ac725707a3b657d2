package insight

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.0-flash-lite"
	maxOutputTokens      = 8192
	maxErrorBodyBytes    = 512
)

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// Client defaults to a client with pooled keep-alive connections
	Client *http.Client
}

// GeminiClient calls the generateContent endpoint of the Gemini REST API
type GeminiClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// NewGeminiClient returns nil when no API key is configured, which disables insights
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}
	return &GeminiClient{
		apiKey:   cfg.APIKey,
		endpoint: fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimSuffix(cfg.BaseURL, "/"), cfg.Model),
		client:   cfg.Client,
	}
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxOutputTokens,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInsightUnavailable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.S().Debugw("Failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInsightUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(raw) > maxErrorBodyBytes {
			raw = raw[:maxErrorBodyBytes]
		}
		return "", fmt.Errorf("%w: HTTP status %d: %s", ErrInsightUnavailable, resp.StatusCode, raw)
	}

	var parsed geminiResponse
	if err = json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %w", ErrInsightUnavailable, err)
	}
	if parsed.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrInsightUnavailable, parsed.PromptFeedback.BlockReason)
	}

	var text strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: empty response", ErrInsightUnavailable)
	}
	return StripCodeMarkers(text.String()), nil
}
