package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"golang.org/x/time/rate"

	"product-catalog-backend/internal/models"
	"product-catalog-backend/internal/pipeline"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type geminiRequest struct {
	GenerationConfig generationConfig `json:"generationConfig"`
	Contents         []content        `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// Client extracts product fields from package photos with the Gemini
// generateContent API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration, ratePerSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 4),
	}
}

// Extract sends one image with the extraction prompt and parses the reply.
// Errors are *pipeline.ExtractionError.
func (c *Client) Extract(ctx context.Context, img models.UploadedImage) (models.Candidate, error) {
	if c.apiKey == "" {
		return models.Candidate{}, &pipeline.ExtractionError{
			Reason: pipeline.ExtractionUnavailable,
			Err:    errors.New("gemini api key not configured"),
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.Candidate{}, &pipeline.ExtractionError{Reason: pipeline.ExtractionTimeout, Err: err}
	}

	mimeType := img.ContentType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	reqBody := geminiRequest{
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{Text: extractionPrompt},
					{InlineData: &inlineData{
						MimeType: mimeType,
						Data:     base64.StdEncoding.EncodeToString(img.Data),
					}},
				},
			},
		},
	}

	text, err := c.generateContent(ctx, reqBody)
	if err != nil {
		return models.Candidate{}, err
	}

	candidate, err := ParseCandidate(text)
	if err != nil {
		log.WithFields(log.Fields{
			"component": "gemini",
			"filename":  img.Filename,
			"response":  truncate(text, 300),
		}).WithError(err).Warn("unparseable extraction response")
		return models.Candidate{}, &pipeline.ExtractionError{Reason: pipeline.ExtractionMalformed, Err: err}
	}

	return candidate, nil
}

func (c *Client) generateContent(ctx context.Context, body geminiRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", &pipeline.ExtractionError{Reason: pipeline.ExtractionUnavailable, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", &pipeline.ExtractionError{Reason: pipeline.ExtractionUnavailable, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &pipeline.ExtractionError{Reason: classifyTransportError(ctx, err), Err: fmt.Errorf("failed to send request: %w", redactKey(err, c.apiKey))}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &pipeline.ExtractionError{Reason: classifyTransportError(ctx, err), Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &pipeline.ExtractionError{Reason: pipeline.ExtractionRateLimited, Err: fmt.Errorf("API error (status %d)", resp.StatusCode)}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return "", &pipeline.ExtractionError{Reason: pipeline.ExtractionTimeout, Err: fmt.Errorf("API error (status %d)", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &pipeline.ExtractionError{
			Reason: pipeline.ExtractionUnavailable,
			Err:    fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(bodyBytes), 300)),
		}
	}

	var gr geminiResponse
	if err := json.Unmarshal(bodyBytes, &gr); err != nil {
		return "", &pipeline.ExtractionError{Reason: pipeline.ExtractionMalformed, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if len(gr.Candidates) == 0 {
		return "", &pipeline.ExtractionError{Reason: pipeline.ExtractionMalformed, Err: errors.New("no candidates in response")}
	}

	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", &pipeline.ExtractionError{
			Reason: pipeline.ExtractionMalformed,
			Err:    fmt.Errorf("no text part in response (finish reason %q)", gr.Candidates[0].FinishReason),
		}
	}

	return sb.String(), nil
}

func classifyTransportError(ctx context.Context, err error) pipeline.ExtractionReason {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return pipeline.ExtractionTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pipeline.ExtractionTimeout
	}
	return pipeline.ExtractionUnavailable
}

// redactKey keeps the API key out of logged URL errors.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	msg := strings.NewReplacer(url.QueryEscape(key), "REDACTED", key, "REDACTED").Replace(err.Error())
	if msg == err.Error() {
		return err
	}
	return errors.New(msg)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
