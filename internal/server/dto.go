package server

import (
	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
	"github.com/karras2025-collab/it-freelance-exchange/internal/engine"
)

type CreateActorRequest struct {
	ID          string `json:"id,omitempty"`
	Role        string `json:"role" enum:"CLIENT,FREELANCER"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Company     string `json:"company,omitempty"`
	PlanID      string `json:"plan_id,omitempty"`
}

type SubscriptionRequest struct {
	PlanID string `json:"plan_id"`
}

type CreateJobRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Skills      []string `json:"skills,omitempty"`
	BudgetType  string   `json:"budget_type,omitempty" enum:"FIXED,HOURLY,DISCUSS,"`
	BudgetValue string   `json:"budget_value,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
	Draft       bool     `json:"draft,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type CreateOfferRequest struct {
	Price   string `json:"price,omitempty"`
	ETA     string `json:"eta,omitempty"`
	Message string `json:"message,omitempty"`
}

type PostMessageRequest struct {
	Body string `json:"body"`
}

type EntitlementResponse struct {
	ActorID         string `json:"actor_id"`
	PlanID          string `json:"plan_id,omitempty"`
	RemainingOffers *int   `json:"remaining_offers,omitempty"`
	Unlimited       bool   `json:"unlimited"`
	HasMessaging    bool   `json:"has_messaging"`
}

func entitlementResponse(ent engine.Entitlement) EntitlementResponse {
	return EntitlementResponse{
		ActorID:         ent.ActorID,
		PlanID:          ent.PlanID,
		RemainingOffers: ent.RemainingOffers,
		Unlimited:       ent.RemainingOffers == nil,
		HasMessaging:    ent.HasMessaging,
	}
}

type PlanListResponse struct {
	Plans []domain.Plan `json:"plans"`
}
