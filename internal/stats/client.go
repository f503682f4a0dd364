package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	appCtx "github.com/avolkov/afisha/internal/pkg/context"
	"github.com/avolkov/afisha/internal/pkg/logger"
)

const timeLayout = "2006-01-02 15:04:05"

type ClientConfig struct {
	// BaseURL is the statistics server endpoint, e.g. http://stats:9090.
	BaseURL string
	// ReadTimeout is used for GET requests, WriteTimeout for POST.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// App names this service in recorded hits.
	App string
}

func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:      baseURL,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 5 * time.Second,
		App:          "afisha",
	}
}

// Client talks to the statistics server over HTTP. Requests carry the
// X-Request-ID from context and are bounded by method-based timeouts.
type Client struct {
	base   string
	app    string
	http   *http.Client
	config ClientConfig
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		app:    cfg.App,
		http:   &http.Client{},
		config: cfg,
	}
}

// App returns the application name used in recorded hits.
func (c *Client) App() string { return c.app }

func (c *Client) RecordHit(ctx context.Context, h Hit) error {
	if h.App == "" {
		h.App = c.app
	}
	body := struct {
		App       string `json:"app"`
		URI       string `json:"uri"`
		IP        string `json:"ip"`
		Timestamp string `json:"timestamp"`
	}{h.App, h.URI, h.ClientIP, h.Timestamp.UTC().Format(timeLayout)}

	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/hit", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("stats: hit rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) DistinctHitsSince(ctx context.Context, uri, clientIP string, since time.Time) (int, error) {
	q := url.Values{}
	q.Set("start", since.UTC().Format(timeLayout))
	q.Set("end", time.Now().UTC().Format(timeLayout))
	q.Set("uris", uri)
	q.Set("unique", "true")
	q.Set("ip", clientIP)

	ctx, cancel := context.WithTimeout(ctx, c.config.ReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/stats?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("stats: query failed with status %d", resp.StatusCode)
	}

	var out []struct {
		App  string `json:"app"`
		URI  string `json:"uri"`
		Hits int    `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}

	total := 0
	for _, row := range out {
		if row.URI == uri {
			total += row.Hits
		}
	}
	return total, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if rid := appCtx.GetRequestID(req.Context()); rid != "" {
		req.Header.Set("X-Request-Id", rid)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.WithCtx(req.Context()).Warn().
			Err(err).
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Dur("duration", time.Since(start)).
			Msg("stats_request_failed")
		return nil, err
	}
	return resp, nil
}
