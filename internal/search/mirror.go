// Package search maintains an optional Elasticsearch mirror of the
// application index for full-text lookups across names, contacts and the
// opaque details payload.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
)

const IndexName = "loan-applications"

// document is the mirrored projection. The DB stays the source of truth;
// lookups resolve hits back through the store.
type document struct {
	ID        int64          `json:"id"`
	WPEntryID string         `json:"wpEntryId"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Email     string         `json:"email"`
	Mobile    string         `json:"mobile"`
	Branch    string         `json:"branch"`
	Status    models.Status  `json:"status"`
	Details   models.Details `json:"details"`
}

type Mirror struct {
	client *elasticsearch.Client
	logger logger.Logger
}

// NewMirror wraps an Elasticsearch client. A nil client disables the mirror.
func NewMirror(client *elasticsearch.Client, log logger.Logger) *Mirror {
	return &Mirror{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "search"}),
	}
}

func (m *Mirror) Enabled() bool {
	return m != nil && m.client != nil
}

// Index mirrors one application, best-effort. Indexing lag or failure never
// blocks the write path.
func (m *Mirror) Index(ctx context.Context, app *models.LoanApplication) {
	if !m.Enabled() {
		return
	}

	doc := document{
		ID:        app.ID,
		WPEntryID: app.WPEntryID,
		FirstName: app.FirstName,
		LastName:  app.LastName,
		Email:     app.Email,
		Mobile:    app.Mobile,
		Branch:    app.Branch,
		Status:    app.Status,
		Details:   app.Details,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		m.logger.Warn("failed to marshal search document", map[string]interface{}{"loanId": app.ID})
		return
	}

	req := esapi.IndexRequest{
		Index:      IndexName,
		DocumentID: strconv.FormatInt(app.ID, 10),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, m.client)
	if err != nil {
		m.logger.Warn("failed to index application", map[string]interface{}{
			"loanId": app.ID,
			"error":  err.Error(),
		})
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		m.logger.Warn("search index rejected document", map[string]interface{}{
			"loanId": app.ID,
			"status": res.Status(),
		})
	}
}

// Delete removes a mirrored document, best-effort.
func (m *Mirror) Delete(ctx context.Context, loanID int64) {
	if !m.Enabled() {
		return
	}
	req := esapi.DeleteRequest{
		Index:      IndexName,
		DocumentID: strconv.FormatInt(loanID, 10),
	}
	res, err := req.Do(ctx, m.client)
	if err != nil {
		m.logger.Warn("failed to delete search document", map[string]interface{}{
			"loanId": loanID,
			"error":  err.Error(),
		})
		return
	}
	res.Body.Close()
}

// Lookup runs a full-text query and returns matching application ids,
// best match first.
func (m *Mirror) Lookup(ctx context.Context, query string, size int) ([]int64, error) {
	if !m.Enabled() {
		return nil, fmt.Errorf("search mirror not enabled")
	}
	if size < 1 {
		size = 20
	}

	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"firstName", "lastName", "email", "mobile", "branch", "details.*"},
			},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search query: %w", err)
	}

	res, err := m.client.Search(
		m.client.Search.WithContext(ctx),
		m.client.Search.WithIndex(IndexName),
		m.client.Search.WithBody(bytes.NewReader(raw)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]int64, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ids = append(ids, hit.Source.ID)
	}
	return ids, nil
}
