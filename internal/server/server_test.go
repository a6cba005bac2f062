package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/karras2025-collab/it-freelance-exchange/internal/config"
	"github.com/karras2025-collab/it-freelance-exchange/internal/db"
	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
	"github.com/karras2025-collab/it-freelance-exchange/internal/engine"
	"github.com/karras2025-collab/it-freelance-exchange/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e, err := engine.New(conn, config.Default())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{AllowLegacyActorHeader: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, actorID string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func (s *testServer) seedActors(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Engine.RegisterActor(ctx, engine.ActorCreateOptions{ID: "c1", Role: domain.RoleClient, DisplayName: "Acme"}); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	if _, err := s.Engine.RegisterActor(ctx, engine.ActorCreateOptions{ID: "f1", Role: domain.RoleFreelancer, DisplayName: "Dev", PlanID: "FREE"}); err != nil {
		t.Fatalf("seed freelancer: %v", err)
	}
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/jobs", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %s, want unauthorized", envelope.Error.Code)
	}
}

func TestPlansAreOpen(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/plans", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("plans status %d: %s", res.StatusCode, string(data))
	}
	var body PlanListResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal plans: %v", err)
	}
	if len(body.Plans) != 3 {
		t.Fatalf("want 3 plans, got %d", len(body.Plans))
	}
}

func TestOfferFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	srv.seedActors(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", map[string]any{
		"title":    "Build a bot",
		"category": "Bots & Automation",
	}, "c1")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create job: %d %s", res.StatusCode, string(data))
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if job.Status != domain.JobPublished {
		t.Fatalf("job status = %s, want PUBLISHED", job.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/"+job.ID+"/offers", map[string]any{
		"price": "40000", "message": "can do",
	}, "f1")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit offer: %d %s", res.StatusCode, string(data))
	}
	var offer domain.Offer
	if err := json.Unmarshal(data, &offer); err != nil {
		t.Fatalf("unmarshal offer: %v", err)
	}

	// duplicate is a conflict with a stable code
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/"+job.ID+"/offers", map[string]any{}, "f1")
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate offer: %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "duplicate_offer" {
		t.Fatalf("code = %s, want duplicate_offer", envelope.Error.Code)
	}

	// only the owner sees a job's offers
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/jobs/"+job.ID+"/offers", nil, "f1")
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("offer list as outsider: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/offers/"+offer.ID+"/accept", nil, "c1")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}
	var deal domain.Deal
	if err := json.Unmarshal(data, &deal); err != nil {
		t.Fatalf("unmarshal deal: %v", err)
	}
	if deal.Status != domain.DealInProgress {
		t.Fatalf("deal status = %s", deal.Status)
	}

	// FREE freelancer has no chat capability
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/deals/"+deal.ID+"/messages", map[string]any{"body": "hi"}, "f1")
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("gated message: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "capability_required" {
		t.Fatalf("code = %s, want capability_required", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/actors/f1/subscription", map[string]any{"plan_id": "PREMIUM"}, "f1")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upgrade: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/deals/"+deal.ID+"/messages", map[string]any{"body": "hi"}, "f1")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("premium message: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/deals/"+deal.ID+"/messages", nil, "c1")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list messages: %d %s", res.StatusCode, string(data))
	}
	var msgs []domain.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(msgs))
	}
}

func TestQuotaExceededOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	srv.seedActors(t)
	client := srv.Client()

	var jobIDs []string
	for i := 0; i < 4; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", map[string]any{
			"title":    "job",
			"category": "Other",
		}, "c1")
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create job: %d %s", res.StatusCode, string(data))
		}
		var job domain.Job
		_ = json.Unmarshal(data, &job)
		jobIDs = append(jobIDs, job.ID)
	}
	for i := 0; i < 3; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/"+jobIDs[i]+"/offers", map[string]any{}, "f1")
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("offer %d: %d %s", i, res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/"+jobIDs[3]+"/offers", map[string]any{}, "f1")
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/actors/f1/entitlement", nil, "f1")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("entitlement: %d %s", res.StatusCode, string(data))
	}
	var ent EntitlementResponse
	if err := json.Unmarshal(data, &ent); err != nil {
		t.Fatalf("unmarshal entitlement: %v", err)
	}
	if ent.Unlimited || ent.RemainingOffers == nil || *ent.RemainingOffers != 0 {
		t.Fatalf("unexpected entitlement: %+v", ent)
	}
}

func TestInvalidTransitionOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	srv.seedActors(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", map[string]any{
		"title": "drafted", "category": "Other", "draft": true,
	}, "c1")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create draft: %d %s", res.StatusCode, string(data))
	}
	var job domain.Job
	_ = json.Unmarshal(data, &job)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/jobs/"+job.ID+"/status", map[string]any{"status": "CLOSED"}, "c1")
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("code = %s, want invalid_transition", envelope.Error.Code)
	}
	if envelope.Error.Details["from"] != "DRAFT" || envelope.Error.Details["to"] != "CLOSED" {
		t.Fatalf("unexpected details: %v", envelope.Error.Details)
	}

	// unknown jobs are 404
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/jobs/nope", nil, "c1")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}
