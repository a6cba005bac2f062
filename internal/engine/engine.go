package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/karras2025-collab/it-freelance-exchange/internal/catalog"
	"github.com/karras2025-collab/it-freelance-exchange/internal/config"
	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
	"github.com/karras2025-collab/it-freelance-exchange/internal/entitlement"
	"github.com/karras2025-collab/it-freelance-exchange/internal/events"
	"github.com/karras2025-collab/it-freelance-exchange/internal/repo"
)

// Errors surfaced by engine operations. The HTTP layer maps these to the
// error envelope; nothing here is retried or swallowed.
var (
	ErrQuotaExceeded  = errors.New("weekly offer quota exceeded")
	ErrDuplicateOffer = errors.New("offer already exists for this job and freelancer")
	ErrInvalidState   = errors.New("invalid state for operation")
	ErrForbidden      = errors.New("operation not permitted for this actor")
)

// InvalidTransitionError reports a lifecycle move the state machine does
// not allow.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

// Engine owns every mutation of the exchange as a serializable sqlite
// transaction. The clock is injected so week-boundary logic is
// deterministic in tests.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Catalog *catalog.Catalog
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) (Engine, error) {
	cat, err := catalog.FromConfig(cfg)
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Catalog: cat,
		Config:  cfg,
		Now:     time.Now,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ActorCreateOptions are parameters for registering an actor.
type ActorCreateOptions struct {
	ID          string
	Role        domain.Role
	DisplayName string
	Email       string
	Company     string
	PlanID      string
}

// RegisterActor creates an actor; freelancers start on the default plan
// unless another catalog tier is named.
func (e Engine) RegisterActor(ctx context.Context, opts ActorCreateOptions) (domain.Actor, error) {
	if !opts.Role.Valid() {
		return domain.Actor{}, fmt.Errorf("role %q is invalid", opts.Role)
	}
	if opts.DisplayName == "" {
		return domain.Actor{}, errors.New("display name is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowRFC3339()
	a := domain.Actor{
		ID:          id,
		Role:        opts.Role,
		DisplayName: opts.DisplayName,
		Email:       opts.Email,
		Company:     opts.Company,
		CreatedAt:   now,
	}
	planID := opts.PlanID
	if planID == "" {
		planID = e.Config.Exchange.DefaultPlan
	}
	if opts.Role == domain.RoleFreelancer {
		if _, err := e.Catalog.ByID(planID); err != nil {
			return domain.Actor{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertActor(ctx, tx, a); err != nil {
		return domain.Actor{}, fmt.Errorf("insert actor: %w", err)
	}
	if opts.Role == domain.RoleFreelancer {
		sub := domain.Subscription{
			ActorID:   a.ID,
			PlanID:    planID,
			Status:    domain.SubscriptionActive,
			StartedAt: now,
		}
		if err := e.Repo.UpsertSubscription(ctx, tx, sub); err != nil {
			return domain.Actor{}, fmt.Errorf("insert subscription: %w", err)
		}
	}
	if err := e.Events.Append(ctx, tx, e.now(), "actor.registered", "actor", a.ID, a.ID, events.EventPayload{"role": string(a.Role)}); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

// ChangeSubscription moves a freelancer onto another catalog tier. The
// new grants apply on the next entitlement evaluation; nothing is cached.
func (e Engine) ChangeSubscription(ctx context.Context, actorID, planID string) (domain.Subscription, error) {
	a, err := e.Repo.GetActor(ctx, actorID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if a.Role != domain.RoleFreelancer {
		return domain.Subscription{}, fmt.Errorf("actor %s: %w", actorID, ErrForbidden)
	}
	if _, err := e.Catalog.ByID(planID); err != nil {
		return domain.Subscription{}, err
	}
	sub := domain.Subscription{
		ActorID:   actorID,
		PlanID:    planID,
		Status:    domain.SubscriptionActive,
		StartedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Subscription{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertSubscription(ctx, tx, sub); err != nil {
		return domain.Subscription{}, err
	}
	if err := e.Events.Append(ctx, tx, e.now(), "subscription.changed", "subscription", actorID, actorID, events.EventPayload{"plan_id": planID}); err != nil {
		return domain.Subscription{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// planForTx resolves the actor's effective plan inside a transaction.
// No subscription, a non-active one, or one past its validity window all
// resolve to no plan.
func (e Engine) planForTx(ctx context.Context, tx *sql.Tx, actorID string) (*domain.Plan, error) {
	sub, err := e.Repo.GetSubscriptionTx(ctx, tx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if sub.Status != domain.SubscriptionActive {
		return nil, nil
	}
	if sub.ExpiresAt != nil {
		exp, err := time.Parse(time.RFC3339, *sub.ExpiresAt)
		if err == nil && e.now().After(exp) {
			return nil, nil
		}
	}
	p, err := e.Catalog.ByID(sub.PlanID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// resolveWeekUsageTx returns the actor's usage for the week containing
// now. A missing or stale record is replaced with a zero counter before
// use; the reset is a hard overwrite, never a carry-over.
func (e Engine) resolveWeekUsageTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.WeeklyUsage, error) {
	weekStart := entitlement.WeekStart(e.now()).Format(time.RFC3339)
	u, err := e.Repo.GetWeeklyUsageTx(ctx, tx, actorID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.WeeklyUsage{}, err
	}
	if errors.Is(err, repo.ErrNotFound) || u.WeekStart != weekStart {
		u = domain.WeeklyUsage{ActorID: actorID, WeekStart: weekStart, Count: 0}
		if err := e.Repo.UpsertWeeklyUsage(ctx, tx, u); err != nil {
			return domain.WeeklyUsage{}, err
		}
	}
	return u, nil
}

// Entitlement is the point-in-time grant snapshot for an actor.
type Entitlement struct {
	ActorID         string
	PlanID          string
	RemainingOffers *int
	HasMessaging    bool
}

// ResolveEntitlement computes the actor's current grants, persisting a
// week rollover reset if one is due.
func (e Engine) ResolveEntitlement(ctx context.Context, actorID string) (Entitlement, error) {
	if _, err := e.Repo.GetActor(ctx, actorID); err != nil {
		return Entitlement{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Entitlement{}, err
	}
	defer tx.Rollback()
	plan, err := e.planForTx(ctx, tx, actorID)
	if err != nil {
		return Entitlement{}, err
	}
	usage, err := e.resolveWeekUsageTx(ctx, tx, actorID)
	if err != nil {
		return Entitlement{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entitlement{}, err
	}
	ent := Entitlement{
		ActorID:         actorID,
		RemainingOffers: entitlement.RemainingOffers(plan, usage),
		HasMessaging:    entitlement.HasMessaging(plan),
	}
	if plan != nil {
		ent.PlanID = plan.ID
	}
	return ent, nil
}
