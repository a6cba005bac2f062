package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
	"github.com/karras2025-collab/it-freelance-exchange/internal/entitlement"
	"github.com/karras2025-collab/it-freelance-exchange/internal/events"
)

// OfferSubmitOptions are parameters for submitting an offer on a job.
type OfferSubmitOptions struct {
	JobID        string
	FreelancerID string
	Price        string
	ETA          string
	Message      string
}

// SubmitOffer records an offer against a published job. The quota
// check, duplicate check, offer insert, per-job counter and weekly usage
// counter all commit in one transaction, so a failed submission never
// consumes quota.
func (e Engine) SubmitOffer(ctx context.Context, opts OfferSubmitOptions) (domain.Offer, error) {
	a, err := e.Repo.GetActor(ctx, opts.FreelancerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if a.Role != domain.RoleFreelancer {
		return domain.Offer{}, fmt.Errorf("actor %s cannot submit offers: %w", opts.FreelancerID, ErrForbidden)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Offer{}, err
	}
	defer tx.Rollback()

	job, err := e.Repo.GetJobTx(ctx, tx, opts.JobID)
	if err != nil {
		return domain.Offer{}, err
	}
	if job.Status != domain.JobPublished {
		return domain.Offer{}, fmt.Errorf("job %s is %s, not open for offers: %w", job.ID, job.Status, ErrInvalidState)
	}

	plan, err := e.planForTx(ctx, tx, opts.FreelancerID)
	if err != nil {
		return domain.Offer{}, err
	}
	usage, err := e.resolveWeekUsageTx(ctx, tx, opts.FreelancerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if !entitlement.CanSubmitOffer(plan, usage) {
		return domain.Offer{}, fmt.Errorf("actor %s used %d offers this week: %w", opts.FreelancerID, usage.Count, ErrQuotaExceeded)
	}

	exists, err := e.Repo.OfferExistsTx(ctx, tx, opts.JobID, opts.FreelancerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if exists {
		return domain.Offer{}, fmt.Errorf("job %s: %w", opts.JobID, ErrDuplicateOffer)
	}

	offer := domain.Offer{
		ID:           uuid.New().String(),
		JobID:        opts.JobID,
		FreelancerID: opts.FreelancerID,
		Price:        opts.Price,
		ETA:          opts.ETA,
		Message:      opts.Message,
		Status:       domain.OfferSent,
		CreatedAt:    e.nowRFC3339(),
	}
	if err := e.Repo.InsertOffer(ctx, tx, offer); err != nil {
		return domain.Offer{}, fmt.Errorf("insert offer: %w", err)
	}

	n, err := e.Repo.CountOffersForJobTx(ctx, tx, job.ID)
	if err != nil {
		return domain.Offer{}, err
	}
	job.OfferCount = n
	job.UpdatedAt = offer.CreatedAt
	if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
		return domain.Offer{}, err
	}

	usage.Count++
	if err := e.Repo.UpsertWeeklyUsage(ctx, tx, usage); err != nil {
		return domain.Offer{}, err
	}

	if err := e.Events.Append(ctx, tx, e.now(), "offer.submitted", "offer", offer.ID, opts.FreelancerID, events.EventPayload{"job_id": opts.JobID}); err != nil {
		return domain.Offer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Offer{}, err
	}
	return offer, nil
}

// MarkOfferViewed flips a fresh offer to viewed when the job owner opens
// it. Viewing an already viewed offer is a no-op.
func (e Engine) MarkOfferViewed(ctx context.Context, offerID, actorID string) (domain.Offer, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Offer{}, err
	}
	defer tx.Rollback()
	offer, job, err := e.offerWithJobTx(ctx, tx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if job.ClientID != actorID {
		return domain.Offer{}, fmt.Errorf("actor %s does not own job %s: %w", actorID, job.ID, ErrForbidden)
	}
	if offer.Status == domain.OfferViewed {
		return offer, nil
	}
	if offer.Status != domain.OfferSent {
		return domain.Offer{}, InvalidTransitionError{Entity: "offer", From: offer.Status, To: domain.OfferViewed}
	}
	if err := e.Repo.UpdateOfferStatus(ctx, tx, offerID, domain.OfferViewed); err != nil {
		return domain.Offer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Offer{}, err
	}
	offer.Status = domain.OfferViewed
	return offer, nil
}

func (e Engine) offerWithJobTx(ctx context.Context, tx *sql.Tx, offerID string) (domain.Offer, domain.Job, error) {
	offer, err := e.Repo.GetOfferTx(ctx, tx, offerID)
	if err != nil {
		return domain.Offer{}, domain.Job{}, err
	}
	job, err := e.Repo.GetJobTx(ctx, tx, offer.JobID)
	if err != nil {
		return domain.Offer{}, domain.Job{}, err
	}
	return offer, job, nil
}

func offerDecidable(status string) bool {
	return status == domain.OfferSent || status == domain.OfferViewed
}

// AcceptOffer accepts an offer on behalf of the job owner. Acceptance,
// deal creation and pausing the job commit together; a job carries at
// most one accepted offer, and the remaining offers stay pending for
// the client to resolve.
func (e Engine) AcceptOffer(ctx context.Context, offerID, actorID string) (domain.Deal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Deal{}, err
	}
	defer tx.Rollback()
	offer, job, err := e.offerWithJobTx(ctx, tx, offerID)
	if err != nil {
		return domain.Deal{}, err
	}
	if job.ClientID != actorID {
		return domain.Deal{}, fmt.Errorf("actor %s does not own job %s: %w", actorID, job.ID, ErrForbidden)
	}
	if !offerDecidable(offer.Status) {
		return domain.Deal{}, InvalidTransitionError{Entity: "offer", From: offer.Status, To: domain.OfferAccepted}
	}
	if job.Status == domain.JobClosed {
		return domain.Deal{}, fmt.Errorf("job %s is closed: %w", job.ID, ErrInvalidState)
	}
	accepted, err := e.Repo.OfferExistsWithStatusTx(ctx, tx, job.ID, domain.OfferAccepted)
	if err != nil {
		return domain.Deal{}, err
	}
	if accepted {
		return domain.Deal{}, fmt.Errorf("job %s already has an accepted offer: %w", job.ID, ErrInvalidState)
	}
	open, err := e.Repo.HasOpenDealForOfferTx(ctx, tx, offer.ID)
	if err != nil {
		return domain.Deal{}, err
	}
	if open {
		return domain.Deal{}, fmt.Errorf("offer %s already has an open deal: %w", offer.ID, ErrInvalidState)
	}

	if err := e.Repo.UpdateOfferStatus(ctx, tx, offerID, domain.OfferAccepted); err != nil {
		return domain.Deal{}, err
	}
	deal := domain.Deal{
		ID:           uuid.New().String(),
		JobID:        job.ID,
		OfferID:      offer.ID,
		ClientID:     job.ClientID,
		FreelancerID: offer.FreelancerID,
		Status:       domain.DealInProgress,
		CreatedAt:    e.nowRFC3339(),
	}
	if err := e.Repo.InsertDeal(ctx, tx, deal); err != nil {
		return domain.Deal{}, fmt.Errorf("insert deal: %w", err)
	}
	if job.Status == domain.JobPublished {
		job.Status = domain.JobPaused
		job.UpdatedAt = deal.CreatedAt
		if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
			return domain.Deal{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, e.now(), "offer.accepted", "offer", offer.ID, actorID, events.EventPayload{"job_id": job.ID, "deal_id": deal.ID}); err != nil {
		return domain.Deal{}, err
	}
	if err := e.Events.Append(ctx, tx, e.now(), "deal.created", "deal", deal.ID, actorID, events.EventPayload{"job_id": job.ID, "freelancer_id": offer.FreelancerID}); err != nil {
		return domain.Deal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Deal{}, err
	}
	return deal, nil
}

// RejectOffer declines a pending offer on behalf of the job owner.
func (e Engine) RejectOffer(ctx context.Context, offerID, actorID string) (domain.Offer, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Offer{}, err
	}
	defer tx.Rollback()
	offer, job, err := e.offerWithJobTx(ctx, tx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if job.ClientID != actorID {
		return domain.Offer{}, fmt.Errorf("actor %s does not own job %s: %w", actorID, job.ID, ErrForbidden)
	}
	if !offerDecidable(offer.Status) {
		return domain.Offer{}, InvalidTransitionError{Entity: "offer", From: offer.Status, To: domain.OfferRejected}
	}
	if err := e.Repo.UpdateOfferStatus(ctx, tx, offerID, domain.OfferRejected); err != nil {
		return domain.Offer{}, err
	}
	if err := e.Events.Append(ctx, tx, e.now(), "offer.rejected", "offer", offer.ID, actorID, events.EventPayload{"job_id": job.ID}); err != nil {
		return domain.Offer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Offer{}, err
	}
	offer.Status = domain.OfferRejected
	return offer, nil
}

// ListOffersForJob returns a job's offers. Only the owning client may
// see them.
func (e Engine) ListOffersForJob(ctx context.Context, jobID, actorID string) ([]domain.Offer, error) {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID {
		return nil, fmt.Errorf("actor %s does not own job %s: %w", actorID, jobID, ErrForbidden)
	}
	return e.Repo.ListOffersForJob(ctx, jobID)
}

// ListOffersForFreelancer returns a freelancer's own offers.
func (e Engine) ListOffersForFreelancer(ctx context.Context, freelancerID string) ([]domain.Offer, error) {
	if _, err := e.Repo.GetActor(ctx, freelancerID); err != nil {
		return nil, err
	}
	return e.Repo.ListOffersForFreelancer(ctx, freelancerID)
}
