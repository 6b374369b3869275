// Package expo sends push notifications through the Expo push service.
package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultURL = "https://exp.host/--/api/v2/push/send"

// ErrDeviceNotRegistered means the token is dead and should be dropped.
var ErrDeviceNotRegistered = errors.New("expo: device not registered")

// IsExpoToken reports whether token looks like an Expo push token,
// e.g. ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx].
func IsExpoToken(token string) bool {
	if len(token) <= 20 || !strings.HasSuffix(token, "]") {
		return false
	}
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}

type Message struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Badge    int               `json:"badge,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

type ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type Client struct {
	URL         string
	AccessToken string // optional, for projects with enhanced push security
	client      *http.Client
}

func NewClient(url, accessToken string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		URL:         url,
		AccessToken: accessToken,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts one message and returns the push ticket id.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if msg.Sound == "" {
		msg.Sound = "default"
	}
	if msg.Priority == "" {
		msg.Priority = "high"
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("expo push: %d %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("expo push: decode: %w", err)
	}
	// A single message yields a single ticket; batches yield an array.
	var t ticket
	if err := json.Unmarshal(out.Data, &t); err != nil {
		var ts []ticket
		if err := json.Unmarshal(out.Data, &ts); err != nil || len(ts) == 0 {
			return "", fmt.Errorf("expo push: unexpected response %s", strings.TrimSpace(string(respBody)))
		}
		t = ts[0]
	}
	if t.Status != "ok" {
		if t.Details.Error == "DeviceNotRegistered" {
			return "", fmt.Errorf("%w: %s", ErrDeviceNotRegistered, t.Message)
		}
		return "", fmt.Errorf("expo push: %s %s", t.Details.Error, t.Message)
	}
	return t.ID, nil
}
