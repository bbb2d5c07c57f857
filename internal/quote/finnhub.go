// Package quote fetches current prices from the market-data provider.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	scanerrors "rvol-scanner/internal/errors"
	"rvol-scanner/internal/models"
)

// Fetcher is the interface consumed by the watch loop.
type Fetcher interface {
	GetQuote(ctx context.Context, ticker string) (*models.Quote, error)
}

// Client fetches quotes from the Finnhub HTTP API. It is stateless; the
// provider is treated as unreliable and errors are returned to the caller,
// which is expected to skip the ticker for the cycle.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a Finnhub quote client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// finnhubQuote mirrors the provider's /quote payload.
type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// GetQuote returns the current price for a ticker. A zero or missing current
// price falls back to the previous close, matching the provider's behavior
// outside market hours.
func (c *Client) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	u := fmt.Sprintf("%s/quote?symbol=%s&token=%s", c.baseURL, url.QueryEscape(ticker), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating quote request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, scanerrors.NewQuoteError(ticker, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, scanerrors.NewQuoteError(ticker, resp.StatusCode, nil)
	}

	var fq finnhubQuote
	if err := json.NewDecoder(resp.Body).Decode(&fq); err != nil {
		return nil, scanerrors.NewQuoteError(ticker, 0, fmt.Errorf("decoding quote: %w", err))
	}

	current := fq.Current
	if current == 0 {
		current = fq.PrevClose
	}
	if current == 0 {
		return nil, scanerrors.NewQuoteError(ticker, 0, scanerrors.ErrQuoteUnavailable)
	}

	return &models.Quote{
		Ticker:        ticker,
		Current:       current,
		Change:        fq.Change,
		ChangePercent: fq.ChangePercent,
		High:          fq.High,
		Low:           fq.Low,
		Open:          fq.Open,
		PrevClose:     fq.PrevClose,
		Timestamp:     time.Unix(fq.Timestamp, 0).UTC(),
	}, nil
}
