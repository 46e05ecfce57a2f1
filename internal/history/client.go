// Package history reads past station reports: the remote device/history
// API and a local SQLite archive of everything received on the feed.
package history

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

// ErrNoDevice is returned when the device endpoint lists no device.
var ErrNoDevice = errors.New("no device")

// maxBody bounds a history response.
const maxBody = 16 << 20

// Client talks to the station's REST API.
type Client struct {
	base string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.http = &http.Client{Timeout: d} }
}

// NewClient returns a client for the API rooted at baseURL
// (e.g. https://pollen.example.com/api).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Device returns the current device snapshot (the first listed device).
func (c *Client) Device(ctx context.Context) (telemetry.Message, error) {
	body, err := c.get(ctx, "/devices")
	if err != nil {
		return telemetry.Message{}, err
	}
	devices, err := telemetry.DecodeList(body)
	if err != nil {
		return telemetry.Message{}, errors.Wrap(err, "devices")
	}
	if len(devices) == 0 {
		return telemetry.Message{}, ErrNoDevice
	}
	return devices[0], nil
}

// History returns past reports, newest first as the API serves them.
func (c *Client) History(ctx context.Context) ([]telemetry.Message, error) {
	body, err := c.get(ctx, "/history")
	if err != nil {
		return nil, err
	}
	msgs, err := telemetry.DecodeList(body)
	if err != nil {
		return nil, errors.Wrap(err, "history")
	}
	return msgs, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request %s", path)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("GET %s: response status: %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return body, nil
}
