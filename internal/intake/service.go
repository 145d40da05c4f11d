// Package intake ingests loan applications submitted directly over the
// webhook, bypassing the batch form sync.
package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

// Webhook submissions use composite name keys instead of the batch form's
// numeric field ids.
const (
	webhookFieldFirstName = "1.3"
	webhookFieldLastName  = "1.6"
	webhookFieldMobile    = "3"
	webhookFieldBranch    = "4"
	webhookFieldEmail     = "5"
)

// payloadSchema is the shape gate for incoming webhook bodies: an object
// with scalar field values. Unknown keys ride along into the details
// payload untouched.
var payloadSchema = map[string]interface{}{
	"type":          "object",
	"minProperties": 1,
	"additionalProperties": map[string]interface{}{
		"type": []string{"string", "number", "boolean", "null"},
	},
}

type Service struct {
	store  *store.Store
	logger logger.Logger
}

func NewService(st *store.Store, log logger.Logger) *Service {
	return &Service{
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "intake"}),
	}
}

// Ingest validates and stores one webhook submission. Entries without an id
// get a synthesized one so repeated deliveries of an id-carrying payload
// stay idempotent while anonymous ones never collide.
func (s *Service) Ingest(ctx context.Context, payload map[string]interface{}) (*models.LoanApplication, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	details := models.Details(payload)
	entryID := details.String("id")
	if entryID == "" {
		entryID = "wh-" + uuid.NewString()
	}

	firstName := firstNonEmpty(details, webhookFieldFirstName, models.FieldFirstName)
	if firstName == "" {
		firstName = "Unknown"
	}
	branch := firstNonEmpty(details, webhookFieldBranch, models.FieldBranch)
	if branch == "" {
		branch = "Main"
	}

	app := &models.LoanApplication{
		WPEntryID: entryID,
		FirstName: firstName,
		LastName:  firstNonEmpty(details, webhookFieldLastName, models.FieldLastName),
		Email:     firstNonEmpty(details, webhookFieldEmail, models.FieldEmail),
		Mobile:    firstNonEmpty(details, webhookFieldMobile, models.FieldMobile),
		Branch:    branch,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}

	id, err := s.store.UpsertWebhookEntry(ctx, app)
	if err != nil {
		return nil, apperrors.NewInternal("store webhook entry", err)
	}
	app.ID = id

	s.logger.Info("webhook entry ingested", map[string]interface{}{
		"wpEntryId": app.WPEntryID,
		"branch":    app.Branch,
	})
	return app, nil
}

func validatePayload(payload map[string]interface{}) error {
	if len(payload) == 0 {
		return apperrors.NewValidation("empty webhook payload")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(payloadSchema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return apperrors.NewValidation(fmt.Sprintf("malformed webhook payload: %v", err))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return apperrors.NewValidation("invalid webhook payload: " + strings.Join(msgs, "; "))
	}
	return nil
}

func firstNonEmpty(details models.Details, keys ...string) string {
	for _, key := range keys {
		if v := details.String(key); v != "" {
			return v
		}
	}
	return ""
}
