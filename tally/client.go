package tally

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bitbucket.org/synergymed/hims_backend/config"
)

// Client talks to one Tally server. No retries live here; a failed send is
// a TransportError and retry policy belongs to the caller.
type Client struct {
	cfg        config.TallyConfig
	endpoint   string
	httpClient *http.Client
}

func NewClient(cfg config.TallyConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		endpoint:   fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Company() string { return c.cfg.Company }

// Send posts one XML request and returns the raw XML response body.
func (c *Client) Send(ctx context.Context, xmlRequest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(xmlRequest))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{Status: resp.StatusCode}
	}
	return string(body), nil
}
