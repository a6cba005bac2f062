package domain

// Role tags an actor with the side of the exchange it operates on.
type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleFreelancer Role = "FREELANCER"
)

// Valid reports whether the role is one of the known variants.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleFreelancer:
		return true
	}
	return false
}

// Job lifecycle statuses.
const (
	JobDraft     = "DRAFT"
	JobPublished = "PUBLISHED"
	JobPaused    = "PAUSED"
	JobClosed    = "CLOSED"
)

// Offer lifecycle statuses.
const (
	OfferSent     = "SENT"
	OfferViewed   = "VIEWED"
	OfferAccepted = "ACCEPTED"
	OfferRejected = "REJECTED"
)

// Deal lifecycle statuses.
const (
	DealInProgress = "IN_PROGRESS"
	DealCompleted  = "COMPLETED"
	DealCancelled  = "CANCELLED"
)

// Subscription statuses.
const (
	SubscriptionActive    = "ACTIVE"
	SubscriptionCancelled = "CANCELLED"
	SubscriptionExpired   = "EXPIRED"
)

// Budget descriptor types.
const (
	BudgetFixed   = "FIXED"
	BudgetHourly  = "HOURLY"
	BudgetDiscuss = "DISCUSS"
)

type Actor struct {
	ID          string `json:"id"`
	Role        Role   `json:"role" enum:"CLIENT,FREELANCER"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Company     string `json:"company,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Subscription ties a freelancer to a plan tier. Clients never carry one.
type Subscription struct {
	ActorID   string  `json:"actor_id"`
	PlanID    string  `json:"plan_id"`
	Status    string  `json:"status" enum:"ACTIVE,CANCELLED,EXPIRED"`
	StartedAt string  `json:"started_at" format:"date-time"`
	ExpiresAt *string `json:"expires_at,omitempty" format:"date-time"`
}

// WeeklyUsage counts quota-consuming actions within one ISO calendar week.
// WeekStart is the Monday 00:00 UTC of the week the count belongs to.
type WeeklyUsage struct {
	ActorID   string `json:"actor_id"`
	WeekStart string `json:"week_start" format:"date-time"`
	Count     int    `json:"count"`
}

type Job struct {
	ID          string   `json:"id"`
	ClientID    string   `json:"client_id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Skills      []string `json:"skills,omitempty"`
	Description string   `json:"description,omitempty"`
	BudgetType  string   `json:"budget_type" enum:"FIXED,HOURLY,DISCUSS"`
	BudgetValue string   `json:"budget_value,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
	Status      string   `json:"status" enum:"DRAFT,PUBLISHED,PAUSED,CLOSED"`
	OfferCount  int      `json:"offer_count"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Offer struct {
	ID           string `json:"id"`
	JobID        string `json:"job_id"`
	FreelancerID string `json:"freelancer_id"`
	Price        string `json:"price,omitempty"`
	ETA          string `json:"eta,omitempty"`
	Message      string `json:"message,omitempty"`
	Status       string `json:"status" enum:"SENT,VIEWED,ACCEPTED,REJECTED"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// Deal is the binding created when a client accepts an offer.
type Deal struct {
	ID           string  `json:"id"`
	JobID        string  `json:"job_id"`
	OfferID      string  `json:"offer_id"`
	ClientID     string  `json:"client_id"`
	FreelancerID string  `json:"freelancer_id"`
	Status       string  `json:"status" enum:"IN_PROGRESS,COMPLETED,CANCELLED"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	CompletedAt  *string `json:"completed_at,omitempty" format:"date-time"`
}

type Message struct {
	ID        string `json:"id"`
	DealID    string `json:"deal_id"`
	SenderID  string `json:"sender_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Plan is one subscription tier from the catalog. A nil WeeklyOfferCap
// means unlimited submissions.
type Plan struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	PriceMonthly   int      `json:"price_monthly"`
	Currency       string   `json:"currency"`
	WeeklyOfferCap *int     `json:"weekly_offer_cap,omitempty"`
	ChatEnabled    bool     `json:"chat_enabled"`
	Features       []string `json:"features,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
