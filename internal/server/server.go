package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/karras2025-collab/it-freelance-exchange/internal/catalog"
	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
	"github.com/karras2025-collab/it-freelance-exchange/internal/engine"
	"github.com/karras2025-collab/it-freelance-exchange/internal/entitlement"
	"github.com/karras2025-collab/it-freelance-exchange/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"quota_exceeded"`
	Message string         `json:"message" example:"weekly offer quota exceeded"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the exchange API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("IT Freelance Exchange API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPlans(group, cfg.Engine)
	registerActors(group, cfg.Engine)
	registerJobs(group, cfg.Engine)
	registerOffers(group, cfg.Engine)
	registerDeals(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe entitlement.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "capability_required", err.Error(), map[string]any{"capability": fe.Capability})
	}
	var te engine.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"entity": te.Entity, "from": te.From, "to": te.To,
		})
	}
	switch {
	case errors.Is(err, engine.ErrQuotaExceeded):
		return newAPIError(http.StatusTooManyRequests, "quota_exceeded", err.Error(), nil)
	case errors.Is(err, engine.ErrDuplicateOffer):
		return newAPIError(http.StatusConflict, "duplicate_offer", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidState):
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, engine.ErrForbidden):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "quota_exceeded"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>IT Freelance Exchange API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerPlans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/plans",
		Summary:     "List subscription plans",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PlanListResponse `json:"body"`
	}, error) {
		return &struct {
			Body PlanListResponse `json:"body"`
		}{Body: PlanListResponse{Plans: e.Catalog.Plans()}}, nil
	})
}

func registerActors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-actor",
		Method:        http.MethodPost,
		Path:          "/actors",
		Summary:       "Register actor",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateActorRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		if input.Body.DisplayName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "display_name is required", nil)
		}
		a, err := e.RegisterActor(ctx, engine.ActorCreateOptions{
			ID:          input.Body.ID,
			Role:        domain.Role(input.Body.Role),
			DisplayName: input.Body.DisplayName,
			Email:       input.Body.Email,
			Company:     input.Body.Company,
			PlanID:      input.Body.PlanID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-actor",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}",
		Summary:     "Get actor",
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		a, err := e.Repo.GetActor(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-subscription",
		Method:      http.MethodPut,
		Path:        "/actors/{actor_id}/subscription",
		Summary:     "Change subscription plan",
	}, func(ctx context.Context, input *struct {
		ActorID string              `path:"actor_id"`
		Body    SubscriptionRequest `json:"body"`
	}) (*struct {
		Body domain.Subscription `json:"body"`
	}, error) {
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if caller != input.ActorID {
			return nil, handleError(fmt.Errorf("subscription belongs to another actor: %w", engine.ErrForbidden))
		}
		if input.Body.PlanID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "plan_id is required", nil)
		}
		sub, err := e.ChangeSubscription(ctx, input.ActorID, input.Body.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subscription `json:"body"`
		}{Body: sub}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entitlement",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/entitlement",
		Summary:     "Current entitlement snapshot",
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct {
		Body EntitlementResponse `json:"body"`
	}, error) {
		ent, err := e.ResolveEntitlement(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EntitlementResponse `json:"body"`
		}{Body: entitlementResponse(ent)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actor-offers",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/offers",
		Summary:     "List a freelancer's offers",
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct {
		Body []domain.Offer `json:"body"`
	}, error) {
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if caller != input.ActorID {
			return nil, handleError(fmt.Errorf("offers belong to another actor: %w", engine.ErrForbidden))
		}
		offers, err := e.ListOffersForFreelancer(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Offer `json:"body"`
		}{Body: offers}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actor-deals",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/deals",
		Summary:     "List an actor's deals",
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct {
		Body []domain.Deal `json:"body"`
	}, error) {
		caller, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if caller != input.ActorID {
			return nil, handleError(fmt.Errorf("deals belong to another actor: %w", engine.ErrForbidden))
		}
		deals, err := e.ListDealsForActor(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Deal `json:"body"`
		}{Body: deals}, nil
	})
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Post a job",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateJobRequest `json:"body"`
	}) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		job, err := e.CreateJob(ctx, engine.JobCreateOptions{
			ClientID:    actorID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Category:    input.Body.Category,
			Skills:      input.Body.Skills,
			BudgetType:  input.Body.BudgetType,
			BudgetValue: input.Body.BudgetValue,
			Deadline:    input.Body.Deadline,
			Draft:       input.Body.Draft,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Category string `query:"category"`
		ClientID string `query:"client_id"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body []domain.Job `json:"body"`
	}, error) {
		jobs, err := e.ListJobs(ctx, repo.JobFilters{
			ClientID: input.ClientID,
			Status:   input.Status,
			Category: input.Category,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Job `json:"body"`
		}{Body: jobs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get job",
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		job, err := e.GetJob(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-job-status",
		Method:      http.MethodPatch,
		Path:        "/jobs/{job_id}/status",
		Summary:     "Publish, pause, resume or close a job",
	}, func(ctx context.Context, input *struct {
		JobID string        `path:"job_id"`
		Body  StatusRequest `json:"body"`
	}) (*struct {
		Body domain.Job `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		job, err := e.SetJobStatus(ctx, input.JobID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Job `json:"body"`
		}{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-offer",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/offers",
		Summary:       "Submit an offer on a job",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		JobID string             `path:"job_id"`
		Body  CreateOfferRequest `json:"body"`
	}) (*struct {
		Body domain.Offer `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		offer, err := e.SubmitOffer(ctx, engine.OfferSubmitOptions{
			JobID:        input.JobID,
			FreelancerID: actorID,
			Price:        input.Body.Price,
			ETA:          input.Body.ETA,
			Message:      input.Body.Message,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Offer `json:"body"`
		}{Body: offer}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-job-offers",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}/offers",
		Summary:     "List a job's offers",
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body []domain.Offer `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		offers, err := e.ListOffersForJob(ctx, input.JobID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Offer `json:"body"`
		}{Body: offers}, nil
	})
}

func registerOffers(api huma.API, e engine.Engine) {
	type offerPath struct {
		OfferID string `path:"offer_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "view-offer",
		Method:      http.MethodPost,
		Path:        "/offers/{offer_id}/view",
		Summary:     "Mark an offer viewed",
	}, func(ctx context.Context, input *offerPath) (*struct {
		Body domain.Offer `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		offer, err := e.MarkOfferViewed(ctx, input.OfferID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Offer `json:"body"`
		}{Body: offer}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "accept-offer",
		Method:        http.MethodPost,
		Path:          "/offers/{offer_id}/accept",
		Summary:       "Accept an offer, creating a deal",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *offerPath) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deal, err := e.AcceptOffer(ctx, input.OfferID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: deal}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-offer",
		Method:      http.MethodPost,
		Path:        "/offers/{offer_id}/reject",
		Summary:     "Reject an offer",
	}, func(ctx context.Context, input *offerPath) (*struct {
		Body domain.Offer `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		offer, err := e.RejectOffer(ctx, input.OfferID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Offer `json:"body"`
		}{Body: offer}, nil
	})
}

func registerDeals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-deal",
		Method:      http.MethodGet,
		Path:        "/deals/{deal_id}",
		Summary:     "Get deal",
	}, func(ctx context.Context, input *struct {
		DealID string `path:"deal_id"`
	}) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deal, err := e.GetDeal(ctx, input.DealID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: deal}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-deal-status",
		Method:      http.MethodPatch,
		Path:        "/deals/{deal_id}/status",
		Summary:     "Complete or cancel a deal",
	}, func(ctx context.Context, input *struct {
		DealID string        `path:"deal_id"`
		Body   StatusRequest `json:"body"`
	}) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		deal, err := e.SetDealStatus(ctx, input.DealID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: deal}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-message",
		Method:        http.MethodPost,
		Path:          "/deals/{deal_id}/messages",
		Summary:       "Post a message on a deal channel",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		DealID string             `path:"deal_id"`
		Body   PostMessageRequest `json:"body"`
	}) (*struct {
		Body domain.Message `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.PostMessage(ctx, input.DealID, actorID, input.Body.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Message `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/deals/{deal_id}/messages",
		Summary:     "Read a deal channel",
	}, func(ctx context.Context, input *struct {
		DealID string `path:"deal_id"`
	}) (*struct {
		Body []domain.Message `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		msgs, err := e.ListMessages(ctx, input.DealID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Message `json:"body"`
		}{Body: msgs}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
