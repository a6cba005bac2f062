package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
	"github.com/karras2025-collab/it-freelance-exchange/internal/entitlement"
	"github.com/karras2025-collab/it-freelance-exchange/internal/events"
)

// Message timestamps use a fixed-width fraction so lexicographic order
// on the stored text matches chronological order.
const messageTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ensureDealTransition(from, to string) error {
	if from == domain.DealInProgress && (to == domain.DealCompleted || to == domain.DealCancelled) {
		return nil
	}
	return InvalidTransitionError{Entity: "deal", From: from, To: to}
}

func dealParticipant(d domain.Deal, actorID string) bool {
	return d.ClientID == actorID || d.FreelancerID == actorID
}

// GetDeal returns a deal visible to its participants only.
func (e Engine) GetDeal(ctx context.Context, dealID, actorID string) (domain.Deal, error) {
	d, err := e.Repo.GetDeal(ctx, dealID)
	if err != nil {
		return domain.Deal{}, err
	}
	if !dealParticipant(d, actorID) {
		return domain.Deal{}, fmt.Errorf("actor %s is not part of deal %s: %w", actorID, dealID, ErrForbidden)
	}
	return d, nil
}

// ListDealsForActor returns the deals an actor takes part in, on either
// side.
func (e Engine) ListDealsForActor(ctx context.Context, actorID string) ([]domain.Deal, error) {
	if _, err := e.Repo.GetActor(ctx, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListDealsForActor(ctx, actorID)
}

// SetDealStatus completes or cancels an in-progress deal. Either
// participant may do this; completion stamps the completion time.
func (e Engine) SetDealStatus(ctx context.Context, dealID, newStatus, actorID string) (domain.Deal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Deal{}, err
	}
	defer tx.Rollback()
	d, err := e.Repo.GetDealTx(ctx, tx, dealID)
	if err != nil {
		return domain.Deal{}, err
	}
	if !dealParticipant(d, actorID) {
		return domain.Deal{}, fmt.Errorf("actor %s is not part of deal %s: %w", actorID, dealID, ErrForbidden)
	}
	if err := ensureDealTransition(d.Status, newStatus); err != nil {
		return domain.Deal{}, err
	}
	var completedAt *string
	if newStatus == domain.DealCompleted {
		ts := e.nowRFC3339()
		completedAt = &ts
	}
	if err := e.Repo.UpdateDealStatus(ctx, tx, dealID, newStatus, completedAt); err != nil {
		return domain.Deal{}, err
	}
	if err := e.Events.Append(ctx, tx, e.now(), "deal.status_changed", "deal", dealID, actorID, events.EventPayload{"status": newStatus}); err != nil {
		return domain.Deal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Deal{}, err
	}
	d.Status = newStatus
	d.CompletedAt = completedAt
	return d, nil
}

// PostMessage appends a message to a deal channel. Freelancers need a
// plan with chat enabled; clients are never gated. The channel only
// accepts writes while the deal is in progress, and stored timestamps
// are strictly increasing per deal even when the clock stands still.
func (e Engine) PostMessage(ctx context.Context, dealID, senderID, body string) (domain.Message, error) {
	if body == "" {
		return domain.Message{}, errors.New("message body is required")
	}
	sender, err := e.Repo.GetActor(ctx, senderID)
	if err != nil {
		return domain.Message{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDealTx(ctx, tx, dealID)
	if err != nil {
		return domain.Message{}, err
	}
	if !dealParticipant(d, senderID) {
		return domain.Message{}, fmt.Errorf("actor %s is not part of deal %s: %w", senderID, dealID, ErrForbidden)
	}
	if d.Status != domain.DealInProgress {
		return domain.Message{}, fmt.Errorf("deal %s is %s, channel is closed: %w", dealID, d.Status, ErrInvalidState)
	}
	if sender.Role == domain.RoleFreelancer {
		plan, err := e.planForTx(ctx, tx, senderID)
		if err != nil {
			return domain.Message{}, err
		}
		if !entitlement.HasMessaging(plan) {
			return domain.Message{}, entitlement.ForbiddenError{Capability: "chat"}
		}
	}

	ts := e.now().UTC()
	last, err := e.Repo.LastMessageTimestampTx(ctx, tx, dealID)
	if err != nil {
		return domain.Message{}, err
	}
	if last != "" {
		if prev, perr := time.Parse(messageTimeLayout, last); perr == nil && !ts.After(prev) {
			ts = prev.Add(time.Nanosecond)
		}
	}

	m := domain.Message{
		ID:        uuid.New().String(),
		DealID:    dealID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: ts.Format(messageTimeLayout),
	}
	if err := e.Repo.InsertMessage(ctx, tx, m); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := e.Events.Append(ctx, tx, e.now(), "message.posted", "deal", dealID, senderID, nil); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// ListMessages returns a deal's channel in send order, oldest first.
func (e Engine) ListMessages(ctx context.Context, dealID, actorID string) ([]domain.Message, error) {
	d, err := e.Repo.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if !dealParticipant(d, actorID) {
		return nil, fmt.Errorf("actor %s is not part of deal %s: %w", actorID, dealID, ErrForbidden)
	}
	return e.Repo.ListMessages(ctx, dealID)
}
