package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
	"github.com/karras2025-collab/it-freelance-exchange/internal/events"
	"github.com/karras2025-collab/it-freelance-exchange/internal/repo"
)

// JobCreateOptions are parameters for posting a job.
type JobCreateOptions struct {
	ClientID    string
	Title       string
	Description string
	Category    string
	Skills      []string
	BudgetType  string
	BudgetValue string
	Deadline    string
	Draft       bool
}

func validBudgetType(t string) bool {
	switch t {
	case domain.BudgetFixed, domain.BudgetHourly, domain.BudgetDiscuss:
		return true
	}
	return false
}

// CreateJob posts a job owned by a client. Jobs go live immediately
// unless created as a draft.
func (e Engine) CreateJob(ctx context.Context, opts JobCreateOptions) (domain.Job, error) {
	a, err := e.Repo.GetActor(ctx, opts.ClientID)
	if err != nil {
		return domain.Job{}, err
	}
	if a.Role != domain.RoleClient {
		return domain.Job{}, fmt.Errorf("actor %s cannot post jobs: %w", opts.ClientID, ErrForbidden)
	}
	if opts.Title == "" {
		return domain.Job{}, errors.New("title is required")
	}
	if opts.Category == "" {
		return domain.Job{}, errors.New("category is required")
	}
	if opts.BudgetType == "" {
		opts.BudgetType = domain.BudgetDiscuss
	}
	if !validBudgetType(opts.BudgetType) {
		return domain.Job{}, fmt.Errorf("budget type %q is invalid", opts.BudgetType)
	}
	if opts.BudgetType != domain.BudgetDiscuss && opts.BudgetValue == "" {
		return domain.Job{}, fmt.Errorf("budget value is required for %s budgets", opts.BudgetType)
	}
	status := domain.JobPublished
	if opts.Draft {
		status = domain.JobDraft
	}
	now := e.nowRFC3339()
	job := domain.Job{
		ID:          uuid.New().String(),
		ClientID:    opts.ClientID,
		Title:       opts.Title,
		Description: opts.Description,
		Category:    opts.Category,
		Skills:      opts.Skills,
		BudgetType:  opts.BudgetType,
		BudgetValue: opts.BudgetValue,
		Deadline:    opts.Deadline,
		Status:      status,
		OfferCount:  0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertJob(ctx, tx, job); err != nil {
		return domain.Job{}, fmt.Errorf("insert job: %w", err)
	}
	if err := e.Events.Append(ctx, tx, e.now(), "job.created", "job", job.ID, opts.ClientID, events.EventPayload{"status": job.Status}); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// ensureJobTransition guards the job lifecycle. Closed is terminal and
// drafts cannot be closed without publishing first.
func ensureJobTransition(from, to string) error {
	ok := false
	switch from {
	case domain.JobDraft:
		ok = to == domain.JobPublished
	case domain.JobPublished:
		ok = to == domain.JobPaused || to == domain.JobClosed
	case domain.JobPaused:
		ok = to == domain.JobPublished || to == domain.JobClosed
	}
	if !ok {
		return InvalidTransitionError{Entity: "job", From: from, To: to}
	}
	return nil
}

// SetJobStatus moves a job through its lifecycle. Only the owning
// client may do this.
func (e Engine) SetJobStatus(ctx context.Context, jobID, newStatus, actorID string) (domain.Job, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()
	job, err := e.Repo.GetJobTx(ctx, tx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if job.ClientID != actorID {
		return domain.Job{}, fmt.Errorf("actor %s does not own job %s: %w", actorID, jobID, ErrForbidden)
	}
	if err := ensureJobTransition(job.Status, newStatus); err != nil {
		return domain.Job{}, err
	}
	job.Status = newStatus
	job.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
		return domain.Job{}, err
	}
	if err := e.Events.Append(ctx, tx, e.now(), "job.status_changed", "job", job.ID, actorID, events.EventPayload{"status": newStatus}); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// GetJob returns a single job.
func (e Engine) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	return e.Repo.GetJob(ctx, jobID)
}

// ListJobs returns jobs matching the filters, newest first.
func (e Engine) ListJobs(ctx context.Context, filters repo.JobFilters) ([]domain.Job, error) {
	return e.Repo.ListJobs(ctx, filters)
}
