package sync

import (
	"context"
	"time"

	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/common/metrics"
	"loan-triage/internal/creditinfo"
	"loan-triage/internal/gravity"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

// EntrySource fetches the full external entry set. Satisfied by
// *gravity.Client.
type EntrySource interface {
	FetchAll(ctx context.Context) ([]gravity.Entry, error)
}

// Verifier resolves an applicant's verification record on demand. Satisfied
// by *creditinfo.Client.
type Verifier interface {
	Lookup(ctx context.Context, personalID string) (*creditinfo.Result, error)
}

// Indexer mirrors synced applications into a search backend, best-effort.
// Satisfied by *search.Mirror.
type Indexer interface {
	Index(ctx context.Context, app *models.LoanApplication)
}

// Result summarizes one reconciliation run.
type Result struct {
	Synced int `json:"synced"`
	Errors int `json:"errors"`
}

// Reconciler pulls the external form entries and upserts them into the
// store. Staff-owned fields (status, assignment) are never written.
type Reconciler struct {
	source   EntrySource
	verifier Verifier
	store    *store.Store
	indexer  Indexer
	logger   logger.Logger
}

// NewReconciler builds the reconciler. A nil source means the external form
// is not configured and every run is a no-op; a nil verifier disables the
// on-demand refresh.
func NewReconciler(source EntrySource, verifier Verifier, st *store.Store, log logger.Logger) *Reconciler {
	return &Reconciler{
		source:   source,
		verifier: verifier,
		store:    st,
		logger:   log.WithFields(map[string]interface{}{"component": "sync"}),
	}
}

// SetIndexer attaches a search mirror. Indexing is best-effort and never
// fails a run.
func (r *Reconciler) SetIndexer(idx Indexer) {
	r.indexer = idx
}

// RunOnce performs a full reconciliation pass. Entry-level failures are
// counted and skipped; only a wholesale fetch failure aborts the run.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	if r.source == nil {
		r.logger.Debug("external form source not configured, skipping sync", nil)
		return Result{}, nil
	}

	start := time.Now()
	entries, err := r.source.FetchAll(ctx)
	if err != nil {
		return Result{}, apperrors.NewUpstreamUnavailable("gravity", err)
	}

	var res Result
	for _, entry := range entries {
		if entry.ID() == "" {
			res.Errors++
			continue
		}
		app := MapEntry(entry)
		id, err := r.store.UpsertSyncedEntry(ctx, app)
		if err != nil {
			res.Errors++
			r.logger.Warn("failed to sync entry", map[string]interface{}{
				"wpEntryId": app.WPEntryID,
				"error":     err.Error(),
			})
			continue
		}
		res.Synced++
		if r.indexer != nil {
			app.ID = id
			r.indexer.Index(ctx, app)
		}
	}

	if err := r.store.SetLastSyncTime(ctx, time.Now().UTC()); err != nil {
		r.logger.Warn("failed to stamp last sync time", map[string]interface{}{"error": err.Error()})
	}

	metrics.SyncEntriesSynced.Add(float64(res.Synced))
	metrics.SyncEntriesFailed.Add(float64(res.Errors))
	metrics.SyncBatchDuration.Observe(time.Since(start).Seconds())

	r.logger.Info("sync run finished", map[string]interface{}{
		"synced": res.Synced,
		"errors": res.Errors,
	})
	return res, nil
}

// RefreshVerification re-checks one application against the CreditInfo store
// and persists the flag only when it changed. Returns the current value.
func (r *Reconciler) RefreshVerification(ctx context.Context, loanID int64) (bool, error) {
	if r.verifier == nil {
		return false, apperrors.NewUpstreamUnavailable("creditinfo", nil)
	}

	loan, err := r.store.GetApplication(ctx, loanID)
	if err != nil {
		return false, apperrors.NewInternal("load application", err)
	}
	if loan == nil {
		return false, apperrors.NewNotFound("application", loanID)
	}

	personalID := loan.Details.PersonalID()
	if personalID == "" {
		return loan.VerificationStatus, nil
	}

	res, err := r.verifier.Lookup(ctx, personalID)
	if err != nil {
		return false, apperrors.NewUpstreamUnavailable("creditinfo", err)
	}

	verified := res.Found && res.Verified
	if verified != loan.VerificationStatus {
		if err := r.store.SetVerificationStatus(ctx, loanID, verified); err != nil {
			return false, apperrors.NewInternal("set verification status", err)
		}
	}
	return verified, nil
}

// LastSyncTime reads the operational marker stamped by RunOnce.
func (r *Reconciler) LastSyncTime(ctx context.Context) (*time.Time, error) {
	st, err := r.store.GetSettings(ctx)
	if err != nil {
		return nil, apperrors.NewInternal("load settings", err)
	}
	if st == nil {
		return nil, nil
	}
	return st.LastSyncTime, nil
}

// Configured reports whether batch sync can run at all.
func (r *Reconciler) Configured() bool {
	return r.source != nil
}
