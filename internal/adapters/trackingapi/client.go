package trackingapi

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/platform/httpx"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrOrderNotFound = errors.New("order not found")

// Client reads tracking snapshots from the service's HTTP API.
// It implements ports.SnapshotFetcher.
type Client struct {
	http    *httpx.Client
	baseURL string
}

func NewClient(baseURL string) *Client {
	return &Client{
		http:    httpx.NewClient(10*time.Second, nil),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) FetchSnapshot(ctx context.Context, orderID string) (*domain.TrackingSnapshot, error) {
	if orderID == "" {
		return nil, errors.New("fetch snapshot: orderID must be non-empty")
	}

	endpoint := c.baseURL + "/orders/" + url.PathEscape(orderID) + "/tracking"
	resp, err := c.http.DoWithRetry(ctx, func() (*http.Request, error) {
		return c.http.NewRequest(ctx, http.MethodGet, endpoint, nil)
	})

	var se *httpx.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, fmt.Errorf("fetch snapshot %q: %w", orderID, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %q: %w", orderID, err)
	}
	defer resp.Body.Close()

	var snap domain.TrackingSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("fetch snapshot %q: decode: %w", orderID, err)
	}

	return &snap, nil
}
