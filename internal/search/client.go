package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"golang.org/x/time/rate"

	"product-catalog-backend/internal/pipeline"
)

const DefaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// Result is one ranked web search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type searchResponse struct {
	Items []Result `json:"items"`
}

// Client queries a Custom Search JSON API compatible endpoint with the
// Japanese locale.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	engineID    string
	baseURL     string
	maxResults  int
	rateLimiter *rate.Limiter
}

func NewClient(baseURL, apiKey, engineID string, maxResults int, timeout time.Duration, ratePerSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxResults <= 0 || maxResults > 10 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiKey:      apiKey,
		engineID:    engineID,
		baseURL:     baseURL,
		maxResults:  maxResults,
		rateLimiter: rate.NewLimiter(limit, 2),
	}
}

// Search returns the ranked results for query. Failures are
// *pipeline.PriceLookupError; an empty result set is reported as no_results.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if c.apiKey == "" || c.engineID == "" {
		return nil, &pipeline.PriceLookupError{
			Reason: pipeline.PriceSearchUnavailable,
			Err:    errors.New("search api key or engine id not configured"),
		}
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, &pipeline.PriceLookupError{Reason: pipeline.PriceSearchUnavailable, Err: fmt.Errorf("rate limiter error: %w", err)}
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(c.maxResults))
	params.Set("gl", "jp")
	params.Set("hl", "ja")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &pipeline.PriceLookupError{Reason: pipeline.PriceSearchUnavailable, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		msg := strings.ReplaceAll(err.Error(), url.QueryEscape(c.apiKey), "REDACTED")
		return nil, &pipeline.PriceLookupError{Reason: pipeline.PriceSearchUnavailable, Err: errors.New(msg)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipeline.PriceLookupError{Reason: pipeline.PriceSearchUnavailable, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{
			"component": "search",
			"status":    resp.StatusCode,
		}).Warnf("search API error: %.200s", string(body))
		return nil, &pipeline.PriceLookupError{Reason: pipeline.PriceSearchUnavailable, Err: fmt.Errorf("API error (status %d)", resp.StatusCode)}
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &pipeline.PriceLookupError{Reason: pipeline.PriceParseFailed, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(sr.Items) == 0 {
		return nil, &pipeline.PriceLookupError{Reason: pipeline.PriceNoResults, Err: fmt.Errorf("no results for %q", query)}
	}

	log.WithFields(log.Fields{"component": "search", "results": len(sr.Items)}).Debugf("search %q", query)
	return sr.Items, nil
}
