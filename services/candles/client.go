package candles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trading_signals_backend/models"
)

// ErrFetchFailed marks a transient fetch failure: every attempt hit a
// transport error, timeout, or non-2xx response. Callers treat it as a
// retryable per-symbol failure, never as a run-level error.
var ErrFetchFailed = errors.New("candle fetch failed after retries")

// Client fetches OHLCV bar sequences from the charting API.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	baseURL         string
	exchange        string
	segment         string
	intervalMinutes int
	maxRetries      int
	httpClient      *http.Client
}

// NewClient creates a candle source client. timeout bounds each attempt.
func NewClient(baseURL, exchange, segment string, intervalMinutes, maxRetries int, timeout time.Duration) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		baseURL:         baseURL,
		exchange:        exchange,
		segment:         segment,
		intervalMinutes: intervalMinutes,
		maxRetries:      maxRetries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// chartResponse is the charting API payload: candles come as
// [timestamp, open, high, low, close, volume] tuples
type chartResponse struct {
	Candles [][]json.Number `json:"candles"`
}

// Fetch returns the candle sequence for one symbol over one window
// (epoch milliseconds). Any non-success response or transport error
// counts as a failed attempt; after maxRetries the error wraps
// ErrFetchFailed so callers can distinguish "no data" from "error".
func (c *Client) Fetch(ctx context.Context, symbol string, startMs, endMs int64) ([]models.Candle, error) {
	reqURL := fmt.Sprintf("%s/exchange/%s/segment/%s/%s",
		c.baseURL, c.exchange, c.segment, url.PathEscape(symbol))

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		candles, err := c.fetchOnce(ctx, reqURL, startMs, endMs)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		log.Printf("%s | retry %d/%d | %v", symbol, attempt, c.maxRetries, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, symbol, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, reqURL string, startMs, endMs int64) ([]models.Candle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("startTimeInMillis", strconv.FormatInt(startMs, 10))
	q.Set("endTimeInMillis", strconv.FormatInt(endMs, 10))
	q.Set("intervalInMinutes", strconv.Itoa(c.intervalMinutes))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload chartResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return decodeCandles(payload.Candles)
}

// decodeCandles converts the tuple array into candles. Tuples shorter
// than 6 fields are rejected so a malformed feed surfaces as a fetch
// error rather than a bogus signal.
func decodeCandles(tuples [][]json.Number) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(tuples))
	for i, t := range tuples {
		if len(t) < 6 {
			return nil, fmt.Errorf("candle %d has %d fields, want 6", i, len(t))
		}
		vals := make([]float64, 6)
		for j := 0; j < 6; j++ {
			f, err := t[j].Float64()
			if err != nil {
				return nil, fmt.Errorf("candle %d field %d: %w", i, j, err)
			}
			vals[j] = f
		}
		candles = append(candles, models.Candle{
			Timestamp: int64(vals[0]),
			Open:      vals[1],
			High:      vals[2],
			Low:       vals[3],
			Close:     vals[4],
			Volume:    int64(vals[5]),
		})
	}
	return candles, nil
}
