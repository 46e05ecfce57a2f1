package sensors

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/relabs-tech/pollen_dashboard/internal/env"
)

// DHTClient reads the station's local sensor endpoint.
type DHTClient struct {
	URL  string
	HTTP *http.Client
}

// NewDHTClient returns a client for url with the given request timeout.
func NewDHTClient(url string, timeout time.Duration) *DHTClient {
	return &DHTClient{URL: url, HTTP: &http.Client{Timeout: timeout}}
}

// Read fetches one reading.
func (c *DHTClient) Read(ctx context.Context) (env.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return env.Sample{}, errors.Wrap(err, "build dht request")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return env.Sample{}, errors.Wrap(err, "GET dht")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return env.Sample{}, errors.Errorf("GET dht: response status: %d", resp.StatusCode)
	}

	var s env.Sample
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&s); err != nil {
		return env.Sample{}, errors.Wrap(err, "decode dht reading")
	}
	return s, nil
}
