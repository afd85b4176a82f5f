package vehicle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Lookup errors. Both leave the user uncharged.
var (
	ErrUnexpectedStatus = errors.New("unexpected status from vehicle api")
	ErrNoData           = errors.New("no vehicle data")
)

const maxBodyBytes = 4 << 20

// Client calls the vehicle-info API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Lookup fetches the record for an already normalised plate.
func (c *Client) Lookup(ctx context.Context, plate string) (Record, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	q := u.Query()
	q.Set("vin", plate)
	q.Set("key", c.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vehicle api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{"plate": plate, "status": resp.StatusCode}).Warn("⚠️ Vehicle API returned non-200")
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("vehicle api returned invalid json")
	}

	data := gjson.GetBytes(body, "processedData")
	if !data.IsObject() {
		return nil, ErrNoData
	}

	record := Record(Value{res: data}.Fields())
	if len(record) == 0 {
		return nil, ErrNoData
	}
	return record, nil
}
