// Package creditinfo looks up an applicant's verification record in the
// WordPress-hosted CreditInfo store.
package creditinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loan-triage/internal/common/config"
	commonhttp "loan-triage/internal/common/http"
)

const defaultTimeout = 15 * time.Second

// candidateRoutes are the REST routes the CreditInfo plugin has been seen
// serving, in preference order. Deployments differ, so the lookup probes
// them until one answers.
var candidateRoutes = []string{
	"/wp-json/creditinfo/v1/check",
	"/wp-json/wp/v2/creditinfo",
}

// successKeywords mark a positive verification in the record body. The
// upstream mixes Georgian and English copy.
var successKeywords = []string{
	"წარმატებით",
	"verified",
	"approved",
	"success",
}

// Result is the outcome of one lookup.
type Result struct {
	Found    bool
	Verified bool
	Raw      string
}

type Client struct {
	cfg        config.WordPressConfig
	httpClient *commonhttp.Client
}

func NewClient(cfg config.WordPressConfig) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: commonhttp.NewClient(timeout),
	}
}

// Lookup probes the known routes for a record matching the personal id. A
// route answering 404 means "try the next route", an empty result set means
// "no record". The first route that yields a record decides the outcome.
func (c *Client) Lookup(ctx context.Context, personalID string) (*Result, error) {
	if personalID == "" {
		return &Result{}, nil
	}

	var lastErr error
	for _, route := range candidateRoutes {
		res, err := c.lookupRoute(ctx, route, personalID)
		if err != nil {
			lastErr = err
			continue
		}
		if res == nil {
			continue
		}
		return res, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return &Result{}, nil
}

// lookupRoute returns nil, nil when the route does not exist on this
// deployment.
func (c *Client) lookupRoute(ctx context.Context, route, personalID string) (*Result, error) {
	endpoint := fmt.Sprintf("%s%s?search=%s", strings.TrimSuffix(c.cfg.APIURL, "/"), route, url.QueryEscape(personalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.User, c.cfg.AppPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("creditinfo lookup failed (status %d): %s", resp.StatusCode, string(body))
	}

	raw := strings.TrimSpace(string(body))
	if !hasRecord(raw) {
		return &Result{}, nil
	}
	return &Result{
		Found:    true,
		Verified: ContainsSuccessKeyword(raw),
		Raw:      raw,
	}, nil
}

// hasRecord distinguishes an empty result set from a real record. The plugin
// answers either a JSON array of posts or a bare status object.
func hasRecord(raw string) bool {
	if raw == "" || raw == "[]" || raw == "{}" || raw == "null" {
		return false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return len(arr) > 0
	}
	return true
}

// ContainsSuccessKeyword reports whether the record text marks the applicant
// as verified.
func ContainsSuccessKeyword(raw string) bool {
	lowered := strings.ToLower(raw)
	for _, kw := range successKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
