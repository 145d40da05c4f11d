// Package gravity is a read-only client for the Gravity Forms REST v2 API,
// the external intake source for loan applications.
package gravity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"loan-triage/internal/common/config"
	commonhttp "loan-triage/internal/common/http"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 100

	// maxFetchEntries bounds a full fetch; the source keeps every historical
	// submission but only the newest slice is reconciled.
	maxFetchEntries = 500
)

// Entry is one raw form submission. Field values are keyed by the numeric
// Gravity field ids and kept opaque; mapping to application fields happens
// downstream.
type Entry map[string]interface{}

// ID returns the entry id, which Gravity serves as a string or a number.
func (e Entry) ID() string {
	switch v := e["id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// DateCreated returns the submission timestamp, or zero when absent or
// unparseable. Gravity serves "2006-01-02 15:04:05" in UTC.
func (e Entry) DateCreated() time.Time {
	s, _ := e["date_created"].(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

type entriesResponse struct {
	TotalCount int     `json:"total_count"`
	Entries    []Entry `json:"entries"`
}

type Client struct {
	cfg        config.GravityConfig
	httpClient *commonhttp.Client
}

func NewClient(cfg config.GravityConfig) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: commonhttp.NewClient(timeout),
	}
}

// FetchPage returns one page of form entries, newest first, plus the total
// entry count reported by the API. Pages are 1-based.
func (c *Client) FetchPage(ctx context.Context, page int) ([]Entry, int, error) {
	if page < 1 {
		page = 1
	}

	pageSize := c.cfg.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxFetchEntries {
		pageSize = maxFetchEntries
	}

	q := url.Values{}
	q.Set("paging[page_size]", fmt.Sprintf("%d", pageSize))
	q.Set("paging[current_page]", fmt.Sprintf("%d", page))
	q.Set("sorting[key]", "date_created")
	q.Set("sorting[direction]", "DESC")

	endpoint := fmt.Sprintf("%s/forms/%s/entries?%s", c.cfg.APIURL, c.cfg.FormID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("failed to fetch entries (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed entriesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal entries: %w", err)
	}
	return parsed.Entries, parsed.TotalCount, nil
}

// FetchAll walks the pages, newest first, until the reported total is
// exhausted or maxFetchEntries have accumulated.
func (c *Client) FetchAll(ctx context.Context) ([]Entry, error) {
	var all []Entry
	for page := 1; ; page++ {
		entries, total, err := c.FetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if total > maxFetchEntries {
			total = maxFetchEntries
		}
		all = append(all, entries...)
		if len(entries) == 0 || len(all) >= total {
			if len(all) > maxFetchEntries {
				all = all[:maxFetchEntries]
			}
			return all, nil
		}
	}
}

// FetchEntry returns one entry by id, or nil when the API reports 404.
func (c *Client) FetchEntry(ctx context.Context, entryID string) (Entry, error) {
	endpoint := fmt.Sprintf("%s/entries/%s", c.cfg.APIURL, url.PathEscape(entryID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

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
		return nil, fmt.Errorf("failed to fetch entry %s (status %d): %s", entryID, resp.StatusCode, string(body))
	}

	var entry Entry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return entry, nil
}
