package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/karras2025-collab/it-freelance-exchange/internal/config"
	"github.com/karras2025-collab/it-freelance-exchange/internal/db"
	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
	"github.com/karras2025-collab/it-freelance-exchange/internal/engine"
	"github.com/karras2025-collab/it-freelance-exchange/internal/entitlement"
	"github.com/karras2025-collab/it-freelance-exchange/internal/migrate"
	"github.com/karras2025-collab/it-freelance-exchange/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

// Monday, so the whole default week fits before the next rollover.
var testEpoch = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng, err := engine.New(conn, config.Default())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	clock := testEpoch
	eng.Now = func() time.Time { return clock }
	return &testEnv{Engine: eng, Ctx: context.Background(), Clock: &clock}
}

func (env *testEnv) advance(d time.Duration) {
	*env.Clock = env.Clock.Add(d)
}

func (env *testEnv) client(t *testing.T, id string) domain.Actor {
	t.Helper()
	a, err := env.Engine.RegisterActor(env.Ctx, engine.ActorCreateOptions{
		ID: id, Role: domain.RoleClient, DisplayName: "Client " + id,
	})
	if err != nil {
		t.Fatalf("register client: %v", err)
	}
	return a
}

func (env *testEnv) freelancer(t *testing.T, id, plan string) domain.Actor {
	t.Helper()
	a, err := env.Engine.RegisterActor(env.Ctx, engine.ActorCreateOptions{
		ID: id, Role: domain.RoleFreelancer, DisplayName: "Freelancer " + id, PlanID: plan,
	})
	if err != nil {
		t.Fatalf("register freelancer: %v", err)
	}
	return a
}

func (env *testEnv) job(t *testing.T, clientID, title string) domain.Job {
	t.Helper()
	j, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{
		ClientID: clientID, Title: title, Category: "Web Development", BudgetType: domain.BudgetDiscuss,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestSubmitOfferQuotaAndRollover(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "FREE")
	for i := 0; i < 4; i++ {
		env.job(t, "c1", fmt.Sprintf("job-%d", i))
	}
	jobs, err := env.Engine.ListJobs(env.Ctx, repo.JobFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 4 {
		t.Fatalf("want 4 jobs, got %d", len(jobs))
	}

	for i := 0; i < 3; i++ {
		if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{
			JobID: jobs[i].ID, FreelancerID: "f1", Message: "hi",
		}); err != nil {
			t.Fatalf("offer %d: %v", i, err)
		}
	}
	_, err = env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[3].ID, FreelancerID: "f1"})
	if !errors.Is(err, engine.ErrQuotaExceeded) {
		t.Fatalf("want quota error, got %v", err)
	}

	// the failed submission must not create an offer
	offers, err := env.Engine.ListOffersForFreelancer(env.Ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 3 {
		t.Fatalf("want 3 offers after rejection, got %d", len(offers))
	}

	// next ISO week the counter resets
	env.advance(7 * 24 * time.Hour)
	if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[3].ID, FreelancerID: "f1"}); err != nil {
		t.Fatalf("post-rollover offer: %v", err)
	}
	ent, err := env.Engine.ResolveEntitlement(env.Ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if ent.RemainingOffers == nil || *ent.RemainingOffers != 2 {
		t.Fatalf("want 2 remaining, got %v", ent.RemainingOffers)
	}
}

func TestSubmitOfferDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "PRO")
	job := env.job(t, "c1", "api work")
	if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "f1"}); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "f1"})
	if !errors.Is(err, engine.ErrDuplicateOffer) {
		t.Fatalf("want duplicate error, got %v", err)
	}
	got, err := env.Engine.GetJob(env.Ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OfferCount != 1 {
		t.Fatalf("offer_count = %d, want 1", got.OfferCount)
	}
}

func TestSubmitOfferRequiresPublishedJob(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "PRO")
	draft, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{
		ClientID: "c1", Title: "draft", Category: "Other", Draft: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: draft.ID, FreelancerID: "f1"})
	if !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("want invalid state, got %v", err)
	}
}

func TestOfferCountTracksSubmissions(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	job := env.job(t, "c1", "big job")
	const k = 5
	for i := 0; i < k; i++ {
		id := fmt.Sprintf("f%d", i)
		env.freelancer(t, id, "PRO")
		if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: id}); err != nil {
			t.Fatalf("offer from %s: %v", id, err)
		}
	}
	got, err := env.Engine.GetJob(env.Ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OfferCount != k {
		t.Fatalf("offer_count = %d, want %d", got.OfferCount, k)
	}
	offers, err := env.Engine.ListOffersForJob(env.Ctx, job.ID, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != k {
		t.Fatalf("want %d offers, got %d", k, len(offers))
	}
}

func TestAcceptOfferCreatesDealAndPausesJob(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "PRO")
	env.freelancer(t, "f2", "PRO")
	job := env.job(t, "c1", "site")
	o1, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "f1"})
	if err != nil {
		t.Fatal(err)
	}
	o2, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "f2"})
	if err != nil {
		t.Fatal(err)
	}

	deal, err := env.Engine.AcceptOffer(env.Ctx, o1.ID, "c1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if deal.Status != domain.DealInProgress || deal.FreelancerID != "f1" || deal.JobID != job.ID {
		t.Fatalf("unexpected deal: %+v", deal)
	}
	gotJob, err := env.Engine.GetJob(env.Ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotJob.Status != domain.JobPaused {
		t.Fatalf("job status = %s, want PAUSED", gotJob.Status)
	}
	gotOffer, err := env.Engine.Repo.GetOffer(env.Ctx, o1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotOffer.Status != domain.OfferAccepted {
		t.Fatalf("offer status = %s, want ACCEPTED", gotOffer.Status)
	}

	// the sibling offer stays pending for the client to resolve
	sibling, err := env.Engine.Repo.GetOffer(env.Ctx, o2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sibling.Status != domain.OfferSent {
		t.Fatalf("sibling status = %s, want SENT", sibling.Status)
	}

	// a second acceptance on the same job is refused either way
	var transErr engine.InvalidTransitionError
	_, err = env.Engine.AcceptOffer(env.Ctx, o1.ID, "c1")
	if !errors.As(err, &transErr) {
		t.Fatalf("want transition error re-accepting, got %v", err)
	}
	_, err = env.Engine.AcceptOffer(env.Ctx, o2.ID, "c1")
	if !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("want invalid state accepting sibling, got %v", err)
	}
}

func TestRejectAndViewOffer(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "PRO")
	job := env.job(t, "c1", "logo")
	offer, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "f1"})
	if err != nil {
		t.Fatal(err)
	}

	// only the owner may act on offers
	if _, err := env.Engine.RejectOffer(env.Ctx, offer.ID, "f1"); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}

	viewed, err := env.Engine.MarkOfferViewed(env.Ctx, offer.ID, "c1")
	if err != nil || viewed.Status != domain.OfferViewed {
		t.Fatalf("mark viewed: %v %s", err, viewed.Status)
	}
	// viewing twice is a no-op
	if _, err := env.Engine.MarkOfferViewed(env.Ctx, offer.ID, "c1"); err != nil {
		t.Fatalf("second view: %v", err)
	}

	rejected, err := env.Engine.RejectOffer(env.Ctx, offer.ID, "c1")
	if err != nil || rejected.Status != domain.OfferRejected {
		t.Fatalf("reject: %v", err)
	}
	var transErr engine.InvalidTransitionError
	if _, err := env.Engine.AcceptOffer(env.Ctx, offer.ID, "c1"); !errors.As(err, &transErr) {
		t.Fatalf("want transition error, got %v", err)
	}
}

func TestJobStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	draft, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{
		ClientID: "c1", Title: "draft", Category: "Other", Draft: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	var transErr engine.InvalidTransitionError
	if _, err := env.Engine.SetJobStatus(env.Ctx, draft.ID, domain.JobClosed, "c1"); !errors.As(err, &transErr) {
		t.Fatalf("draft close should fail, got %v", err)
	}
	job, err := env.Engine.SetJobStatus(env.Ctx, draft.ID, domain.JobPublished, "c1")
	if err != nil || job.Status != domain.JobPublished {
		t.Fatalf("publish: %v", err)
	}
	if _, err := env.Engine.SetJobStatus(env.Ctx, draft.ID, domain.JobPaused, "c1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.Engine.SetJobStatus(env.Ctx, draft.ID, domain.JobPublished, "c1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := env.Engine.SetJobStatus(env.Ctx, draft.ID, domain.JobClosed, "c1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := env.Engine.SetJobStatus(env.Ctx, draft.ID, domain.JobPublished, "c1"); !errors.As(err, &transErr) {
		t.Fatalf("closed is terminal, got %v", err)
	}
}

func TestUpgradeLiftsQuotaMidWeek(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "FREE")
	var jobs []domain.Job
	for i := 0; i < 5; i++ {
		jobs = append(jobs, env.job(t, "c1", fmt.Sprintf("job-%d", i)))
	}
	for i := 0; i < 3; i++ {
		if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[i].ID, FreelancerID: "f1"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[3].ID, FreelancerID: "f1"}); !errors.Is(err, engine.ErrQuotaExceeded) {
		t.Fatalf("want quota error, got %v", err)
	}

	if _, err := env.Engine.ChangeSubscription(env.Ctx, "f1", "PRO"); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	// new grants apply immediately, usage history is kept
	if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[3].ID, FreelancerID: "f1"}); err != nil {
		t.Fatalf("post-upgrade offer: %v", err)
	}
	ent, err := env.Engine.ResolveEntitlement(env.Ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if ent.PlanID != "PRO" || ent.RemainingOffers != nil {
		t.Fatalf("unexpected entitlement: %+v", ent)
	}
	usage, err := env.Engine.Repo.GetWeeklyUsage(env.Ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if usage.Count != 4 {
		t.Fatalf("usage = %d, want 4", usage.Count)
	}
	sub, err := env.Engine.Repo.GetSubscription(env.Ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if sub.PlanID != "PRO" || sub.Status != domain.SubscriptionActive {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
}

func TestMessagingGatedByPlan(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "FREE")
	job := env.job(t, "c1", "bot")
	offer, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "f1"})
	if err != nil {
		t.Fatal(err)
	}
	deal, err := env.Engine.AcceptOffer(env.Ctx, offer.ID, "c1")
	if err != nil {
		t.Fatal(err)
	}

	// clients are never gated
	if _, err := env.Engine.PostMessage(env.Ctx, deal.ID, "c1", "hello"); err != nil {
		t.Fatalf("client message: %v", err)
	}
	var forbidden entitlement.ForbiddenError
	if _, err := env.Engine.PostMessage(env.Ctx, deal.ID, "f1", "hi"); !errors.As(err, &forbidden) {
		t.Fatalf("want capability error, got %v", err)
	}
	if forbidden.Capability != "chat" {
		t.Fatalf("capability = %s, want chat", forbidden.Capability)
	}

	if _, err := env.Engine.ChangeSubscription(env.Ctx, "f1", "PREMIUM"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.PostMessage(env.Ctx, deal.ID, "f1", "hi again"); err != nil {
		t.Fatalf("post-upgrade message: %v", err)
	}

	msgs, err := env.Engine.ListMessages(env.Ctx, deal.ID, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].SenderID != "c1" || msgs[1].SenderID != "f1" {
		t.Fatalf("unexpected order: %s then %s", msgs[0].SenderID, msgs[1].SenderID)
	}
	if !(msgs[0].CreatedAt < msgs[1].CreatedAt) {
		t.Fatalf("timestamps not strictly increasing: %s >= %s", msgs[0].CreatedAt, msgs[1].CreatedAt)
	}

	// outsiders cannot read the channel
	env.freelancer(t, "f2", "PREMIUM")
	if _, err := env.Engine.ListMessages(env.Ctx, deal.ID, "f2"); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}
}

func TestMessageTimestampsStrictlyIncreasing(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "PREMIUM")
	job := env.job(t, "c1", "etl")
	offer, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "f1"})
	if err != nil {
		t.Fatal(err)
	}
	deal, err := env.Engine.AcceptOffer(env.Ctx, offer.ID, "c1")
	if err != nil {
		t.Fatal(err)
	}
	// clock frozen: every message still gets its own instant
	for i := 0; i < 5; i++ {
		if _, err := env.Engine.PostMessage(env.Ctx, deal.ID, "c1", fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := env.Engine.ListMessages(env.Ctx, deal.ID, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 5 {
		t.Fatalf("want 5 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if !(msgs[i-1].CreatedAt < msgs[i].CreatedAt) {
			t.Fatalf("message %d not after %d: %s vs %s", i, i-1, msgs[i].CreatedAt, msgs[i-1].CreatedAt)
		}
	}
}

func TestDealLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "PREMIUM")
	job := env.job(t, "c1", "audit")
	offer, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "f1"})
	if err != nil {
		t.Fatal(err)
	}
	deal, err := env.Engine.AcceptOffer(env.Ctx, offer.ID, "c1")
	if err != nil {
		t.Fatal(err)
	}

	env.freelancer(t, "f2", "FREE")
	if _, err := env.Engine.SetDealStatus(env.Ctx, deal.ID, domain.DealCompleted, "f2"); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("outsider should be refused, got %v", err)
	}

	done, err := env.Engine.SetDealStatus(env.Ctx, deal.ID, domain.DealCompleted, "f1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed deal has no completion time")
	}

	// terminal states refuse the channel and further transitions
	if _, err := env.Engine.PostMessage(env.Ctx, deal.ID, "c1", "late"); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("want invalid state, got %v", err)
	}
	var transErr engine.InvalidTransitionError
	if _, err := env.Engine.SetDealStatus(env.Ctx, deal.ID, domain.DealCancelled, "c1"); !errors.As(err, &transErr) {
		t.Fatalf("want transition error, got %v", err)
	}
}

func TestFreeToProScenario(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "acme")
	env.freelancer(t, "dev", "FREE")

	var jobs []domain.Job
	for i := 0; i < 4; i++ {
		jobs = append(jobs, env.job(t, "acme", fmt.Sprintf("sprint-%d", i)))
	}
	for i := 0; i < 3; i++ {
		if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[i].ID, FreelancerID: "dev", Price: "50000"}); err != nil {
			t.Fatal(err)
		}
	}
	ent, err := env.Engine.ResolveEntitlement(env.Ctx, "dev")
	if err != nil {
		t.Fatal(err)
	}
	if ent.RemainingOffers == nil || *ent.RemainingOffers != 0 {
		t.Fatalf("want 0 remaining, got %v", ent.RemainingOffers)
	}
	if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[3].ID, FreelancerID: "dev"}); !errors.Is(err, engine.ErrQuotaExceeded) {
		t.Fatalf("want quota error, got %v", err)
	}
	if _, err := env.Engine.ChangeSubscription(env.Ctx, "dev", "PRO"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[3].ID, FreelancerID: "dev"}); err != nil {
		t.Fatalf("pro offer: %v", err)
	}

	offers, err := env.Engine.ListOffersForJob(env.Ctx, jobs[3].ID, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 {
		t.Fatalf("want 1 offer, got %d", len(offers))
	}
	deal, err := env.Engine.AcceptOffer(env.Ctx, offers[0].ID, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetDealStatus(env.Ctx, deal.ID, domain.DealCompleted, "acme"); err != nil {
		t.Fatal(err)
	}
	deals, err := env.Engine.ListDealsForActor(env.Ctx, "dev")
	if err != nil {
		t.Fatal(err)
	}
	if len(deals) != 1 || deals[0].Status != domain.DealCompleted {
		t.Fatalf("unexpected deals: %+v", deals)
	}
}

func TestRoleChecks(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "FREE")

	if _, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{ClientID: "f1", Title: "x", Category: "Other"}); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("freelancer posting a job should be refused, got %v", err)
	}
	job := env.job(t, "c1", "real job")
	if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "c1"}); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("client submitting an offer should be refused, got %v", err)
	}
	if _, err := env.Engine.ChangeSubscription(env.Ctx, "c1", "PRO"); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("client subscription should be refused, got %v", err)
	}
}

func TestConcurrentSubmissionsCountEveryOffer(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "PRO")
	const n = 8
	jobs := make([]domain.Job, n)
	for i := range jobs {
		jobs[i] = env.job(t, "c1", fmt.Sprintf("job-%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[i].ID, FreelancerID: "f1"})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("offer %d: %v", i, err)
		}
	}

	usage, err := env.Engine.Repo.GetWeeklyUsage(env.Ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if usage.Count != n {
		t.Fatalf("usage = %d, want %d", usage.Count, n)
	}
}

func TestConcurrentSubmissionsAcrossWeekRollover(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "PRO")
	const n = 6
	jobs := make([]domain.Job, n+2)
	for i := range jobs {
		jobs[i] = env.job(t, "c1", fmt.Sprintf("job-%d", i))
	}
	for i := 0; i < 2; i++ {
		if _, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[i].ID, FreelancerID: "f1"}); err != nil {
			t.Fatal(err)
		}
	}

	env.advance(7 * 24 * time.Hour)
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: jobs[i+2].ID, FreelancerID: "f1"})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("offer %d: %v", i, err)
		}
	}

	usage, err := env.Engine.Repo.GetWeeklyUsage(env.Ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	wantWeek := entitlement.WeekStart(*env.Clock).Format(time.RFC3339)
	if usage.WeekStart != wantWeek {
		t.Fatalf("week_start = %s, want %s", usage.WeekStart, wantWeek)
	}
	if usage.Count != n {
		t.Fatalf("usage = %d, want %d", usage.Count, n)
	}
}

func TestAcceptOfferRefusesOfferWithOpenDeal(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.freelancer(t, "f1", "FREE")
	job := env.job(t, "c1", "site")
	offer, err := env.Engine.SubmitOffer(env.Ctx, engine.OfferSubmitOptions{JobID: job.ID, FreelancerID: "f1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AcceptOffer(env.Ctx, offer.ID, "c1"); err != nil {
		t.Fatal(err)
	}

	// force the offer back to SENT behind the engine's back; the deal
	// row must still block a second acceptance
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.UpdateOfferStatus(env.Ctx, tx, offer.ID, domain.OfferSent); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.AcceptOffer(env.Ctx, offer.ID, "c1"); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("want invalid state, got %v", err)
	}
}

func TestEventTimestampsFollowEngineClock(t *testing.T) {
	env := newTestEnv(t)
	env.client(t, "c1")
	env.advance(48 * time.Hour)
	env.freelancer(t, "f1", "FREE")

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 2, "actor.registered", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Fatalf("want 2 events, got %d", len(evts))
	}
	if want := env.Clock.UTC().Format(time.RFC3339); evts[0].TS != want {
		t.Fatalf("event ts = %s, want %s", evts[0].TS, want)
	}
	if want := testEpoch.Format(time.RFC3339); evts[1].TS != want {
		t.Fatalf("event ts = %s, want %s", evts[1].TS, want)
	}
}
