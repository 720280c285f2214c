package dnsprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// recordTTL is the TTL set on provisioned records, in seconds.
const recordTTL = 300

type ClientConfig struct {
	Token  string
	ZoneID string
	Domain string
}

// Client talks to the Cloudflare v4 DNS records API for a single zone.
type Client struct {
	baseURL    string
	token      string
	domain     string
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("https://api.cloudflare.com/client/v4/zones/%s", cfg.ZoneID),
		token:      cfg.Token,
		domain:     cfg.Domain,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// newClientWithOverrides is used by tests to point at a local server.
func newClientWithOverrides(cfg ClientConfig, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		domain:     cfg.Domain,
		httpClient: httpClient,
	}
}

// Domain returns the zone's apex domain.
func (c *Client) Domain() string {
	return c.domain
}

type RecordSpec struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	Priority uint16 `json:"priority,omitempty"`
	TTL      int    `json:"ttl"`
	Proxied  bool   `json:"proxied"`
}

type Record struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	Priority uint16 `json:"priority,omitempty"`
	TTL      int    `json:"ttl"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

// CreateRecord creates one DNS record in the zone.
func (c *Client) CreateRecord(ctx context.Context, spec RecordSpec) error {
	if spec.TTL == 0 {
		spec.TTL = recordTTL
	}
	body, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dns_records", bytes.NewReader(body))
	if err != nil {
		return err
	}
	env, err := c.do(req)
	if err != nil {
		return fmt.Errorf("create %s record %s: %w", spec.Type, spec.Name, err)
	}
	if !env.Success {
		return fmt.Errorf("create %s record %s: %s", spec.Type, spec.Name, firstError(env.Errors))
	}
	return nil
}

// ListRecords returns the zone's records, optionally filtered by type.
func (c *Client) ListRecords(ctx context.Context, recordType string) ([]Record, error) {
	url := c.baseURL + "/dns_records"
	if recordType != "" {
		url += "?type=" + recordType
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	env, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("list records: %s", firstError(env.Errors))
	}

	var records []Record
	if err := json.Unmarshal(env.Result, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

func (c *Client) do(req *http.Request) (*apiEnvelope, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	return &env, nil
}

func firstError(errs []apiError) string {
	if len(errs) == 0 {
		return "unknown api error"
	}
	return fmt.Sprintf("%d %s", errs[0].Code, errs[0].Message)
}
