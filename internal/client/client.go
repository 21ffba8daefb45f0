// Package client is the HTTP client for the reservation backend. It
// implements the widget's fetch and submit contracts.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"osteria/internal/booking"
	"osteria/internal/models"
	"osteria/internal/slot"
)

// Client calls the reservation backend's record and submission APIs.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// apiError is the error body the backend returns on non-2xx statuses.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// New constructs a client for baseURL with an optional API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
// Submissions are never cached.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// FetchBookings returns reservations inside the window.
func (c *Client) FetchBookings(ctx context.Context, w slot.Window) ([]models.Record, error) {
	endpoint := fmt.Sprintf("%s/api/bookings?date_gte=%s&date_lte=%s",
		c.baseURL, url.QueryEscape(string(w.Min)), url.QueryEscape(string(w.Max)))
	return c.fetchRecords(ctx, endpoint, fmt.Sprintf("bookings:%s:%s", w.Min, w.Max))
}

// FetchCurrentEvents returns non-repeating events inside the window.
func (c *Client) FetchCurrentEvents(ctx context.Context, w slot.Window) ([]models.Record, error) {
	endpoint := fmt.Sprintf("%s/api/events?repeat=false&date_gte=%s&date_lte=%s",
		c.baseURL, url.QueryEscape(string(w.Min)), url.QueryEscape(string(w.Max)))
	return c.fetchRecords(ctx, endpoint, fmt.Sprintf("events:current:%s:%s", w.Min, w.Max))
}

// FetchRepeatingEvents returns repeating events. They carry no date, so
// no window filter applies.
func (c *Client) FetchRepeatingEvents(ctx context.Context) ([]models.Record, error) {
	endpoint := fmt.Sprintf("%s/api/events?repeat=true", c.baseURL)
	return c.fetchRecords(ctx, endpoint, "events:repeat")
}

// SubmitReservation posts the reservation, scoping the response
// snapshot to the window so it covers the whole active date range. A
// 409 from the backend maps to booking.ErrConflict so callers can
// distinguish a lost race from a generic failure.
func (c *Client) SubmitReservation(ctx context.Context, r models.Reservation, w slot.Window) (*booking.Result, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/api/bookings?date_gte=%s&date_lte=%s",
		c.baseURL, url.QueryEscape(string(w.Min)), url.QueryEscape(string(w.Max)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var body apiError
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("%s: %w", body.Error, booking.ErrConflict)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("submit reservation: http %d", resp.StatusCode)
	}

	var result booking.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode submission response: %w", err)
	}

	// The cached GET bodies predate the booking; drop them so the next
	// load cannot revert the snapshot the server just returned.
	c.invalidateCache(ctx, w)
	return &result, nil
}

func (c *Client) invalidateCache(ctx context.Context, w slot.Window) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	_ = c.redis.Del(ctx,
		fmt.Sprintf("bookings:%s:%s", w.Min, w.Max),
		fmt.Sprintf("events:current:%s:%s", w.Min, w.Max),
		"events:repeat",
	).Err()
}

func (c *Client) fetchRecords(ctx context.Context, endpoint, cacheKey string) ([]models.Record, error) {
	var records []models.Record
	if c.readCache(ctx, cacheKey, &records) {
		return records, nil
	}
	if err := c.doGet(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, records)
	return records, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
