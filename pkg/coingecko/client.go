// Package coingecko is a minimal client for the CoinGecko simple price API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Quote is the USD price of one coin and its 24h change in percent.
type Quote struct {
	USD       decimal.Decimal     `json:"usd"`
	Change24h decimal.NullDecimal `json:"usd_24h_change"`
}

type Client struct {
	BaseURL string
	APIKey  string // optional demo key, sent as x-cg-demo-api-key
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SimplePrice fetches USD quotes for the given CoinGecko ids. Ids the API does
// not know are absent from the result.
func (c *Client) SimplePrice(ctx context.Context, ids []string) (map[string]Quote, error) {
	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	q := url.Values{}
	q.Set("ids", strings.Join(sorted, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko simple/price: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	out := make(map[string]Quote, len(ids))
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("coingecko simple/price: decode: %w", err)
	}
	return out, nil
}
