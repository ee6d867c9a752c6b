// Package serp implements the rank lookup client against a Google Custom
// Search style JSON API.
package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/serpwatch/rankscan/internal/rank"
)

const (
	defaultBaseURL = "https://www.googleapis.com/customsearch/v1"
	// MaxDepth is the deepest organic position the provider exposes.
	MaxDepth = 100
	// pageSize is the provider's fixed results-per-request limit.
	pageSize = 10
)

// countryCodes maps the dashboard's country names to the provider's gl
// parameter.
var countryCodes = map[string]string{
	"USA":       "us",
	"UK":        "uk",
	"Canada":    "ca",
	"Australia": "au",
	"Germany":   "de",
	"France":    "fr",
	"Türkiye":   "tr",
}

// Config captures the provider connection knobs.
type Config struct {
	BaseURL  string
	APIKey   string
	EngineID string
	// Depth caps how many organic results are inspected, at most MaxDepth.
	Depth   int
	Timeout time.Duration
}

// Client queries the search provider for keyword positions. It is a pure
// function of its inputs plus network state: no internal retries, no
// caching. Retry decisions belong to the scan coordinator.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient builds a Client. Credentials are validated lazily via Ready so
// that construction never fails in tests that stub the transport.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Depth <= 0 || cfg.Depth > MaxDepth {
		cfg.Depth = MaxDepth
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		http:   resty.New().SetTimeout(cfg.Timeout),
		cfg:    cfg,
		logger: logger,
	}
}

// Ready reports whether the client has usable credentials. A not-ready
// client fails every lookup with rank.ErrMissingCredentials.
func (c *Client) Ready() error {
	if c.cfg.APIKey == "" || c.cfg.EngineID == "" {
		return rank.ErrMissingCredentials
	}
	return nil
}

type searchResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Lookup returns the 1-based position of the first organic result whose URL
// contains domain as a literal substring, or a nil position when the domain
// does not appear within the configured depth. The substring match carries
// known false positives (notexample.com matches example.com); this mirrors
// how ranks were recorded historically and is kept for continuity.
func (c *Client) Lookup(ctx context.Context, term, domain, country string) (rank.Result, error) {
	if err := c.Ready(); err != nil {
		return rank.Result{}, err
	}
	if strings.TrimSpace(term) == "" {
		return rank.Result{}, fmt.Errorf("term is required")
	}
	if strings.TrimSpace(domain) == "" {
		return rank.Result{}, fmt.Errorf("domain is required")
	}

	var raw []byte
	for offset := 0; offset < c.cfg.Depth; offset += pageSize {
		page, body, err := c.fetchPage(ctx, term, country, offset)
		if err != nil {
			return rank.Result{}, err
		}
		raw = body
		if len(page.Items) == 0 {
			// The provider is exhausted before the requested depth.
			break
		}
		for i, item := range page.Items {
			if strings.Contains(item.Link, domain) {
				pos := offset + i + 1
				c.logger.Debug("domain ranked",
					zap.String("term", term),
					zap.String("domain", domain),
					zap.Int("position", pos),
				)
				return rank.Result{Position: rank.Position(pos), Raw: raw}, nil
			}
		}
		if len(page.Items) < pageSize {
			break
		}
	}

	c.logger.Debug("domain not ranked within depth",
		zap.String("term", term),
		zap.String("domain", domain),
		zap.Int("depth", c.cfg.Depth),
	)
	return rank.Result{Raw: raw}, nil
}

func (c *Client) fetchPage(ctx context.Context, term, country string, offset int) (searchResponse, []byte, error) {
	params := map[string]string{
		"key": c.cfg.APIKey,
		"cx":  c.cfg.EngineID,
		"q":   term,
		"num": strconv.Itoa(pageSize),
		// start is 1-based.
		"start": strconv.Itoa(offset + 1),
	}
	if code, ok := countryCodes[country]; ok {
		params["gl"] = code
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.cfg.BaseURL)
	if err != nil {
		return searchResponse{}, nil, fmt.Errorf("search request: %w", err)
	}

	body := resp.Body()
	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return searchResponse{}, nil, fmt.Errorf("decode search response: %w", err)
	}
	if decoded.Error != nil {
		if decoded.Error.Code == 401 || decoded.Error.Code == 403 {
			return searchResponse{}, nil, fmt.Errorf("provider rejected credentials: %s: %w",
				decoded.Error.Message, rank.ErrMissingCredentials)
		}
		return searchResponse{}, nil, fmt.Errorf("provider error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if resp.IsError() {
		return searchResponse{}, nil, fmt.Errorf("provider returned status %d", resp.StatusCode())
	}
	return decoded, body, nil
}
