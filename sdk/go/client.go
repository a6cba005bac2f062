package fxsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal exchange HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Job represents the API job model (partial).
type Job struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Status     string `json:"status"`
	OfferCount int    `json:"offer_count"`
}

// Offer represents a freelancer's response to a job.
type Offer struct {
	ID           string `json:"id"`
	JobID        string `json:"job_id"`
	FreelancerID string `json:"freelancer_id"`
	Price        string `json:"price"`
	Status       string `json:"status"`
}

// Deal represents an accepted offer.
type Deal struct {
	ID           string  `json:"id"`
	JobID        string  `json:"job_id"`
	OfferID      string  `json:"offer_id"`
	ClientID     string  `json:"client_id"`
	FreelancerID string  `json:"freelancer_id"`
	Status       string  `json:"status"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

// Message is one entry in a deal channel.
type Message struct {
	ID        string `json:"id"`
	DealID    string `json:"deal_id"`
	SenderID  string `json:"sender_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// Entitlement is the weekly grant snapshot for an actor.
type Entitlement struct {
	ActorID         string `json:"actor_id"`
	PlanID          string `json:"plan_id"`
	RemainingOffers *int   `json:"remaining_offers,omitempty"`
	Unlimited       bool   `json:"unlimited"`
	HasMessaging    bool   `json:"has_messaging"`
}

// Plan is one catalog tier.
type Plan struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PriceMonthly   int    `json:"price_monthly"`
	Currency       string `json:"currency"`
	WeeklyOfferCap *int   `json:"weekly_offer_cap,omitempty"`
	ChatEnabled    bool   `json:"chat_enabled"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateJob posts a job on behalf of the authenticated client.
func (c *Client) CreateJob(ctx context.Context, title, category string, opts map[string]any) (Job, error) {
	body := map[string]any{
		"title":    title,
		"category": category,
	}
	for k, v := range opts {
		body[k] = v
	}
	var resp Job
	err := c.do(ctx, http.MethodPost, "v1/jobs", body, &resp)
	return resp, err
}

// ListJobs returns published jobs, optionally filtered by category.
func (c *Client) ListJobs(ctx context.Context, status, category string) ([]Job, error) {
	endpoint := "v1/jobs"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if category != "" {
		q.Set("category", category)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Job
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SubmitOffer responds to a job.
func (c *Client) SubmitOffer(ctx context.Context, jobID, price, eta, message string) (Offer, error) {
	body := map[string]any{
		"price":   price,
		"eta":     eta,
		"message": message,
	}
	var resp Offer
	endpoint := fmt.Sprintf("v1/jobs/%s/offers", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AcceptOffer accepts an offer, returning the created deal.
func (c *Client) AcceptOffer(ctx context.Context, offerID string) (Deal, error) {
	var resp Deal
	endpoint := fmt.Sprintf("v1/offers/%s/accept", url.PathEscape(offerID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// RejectOffer declines an offer.
func (c *Client) RejectOffer(ctx context.Context, offerID string) (Offer, error) {
	var resp Offer
	endpoint := fmt.Sprintf("v1/offers/%s/reject", url.PathEscape(offerID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// PostMessage writes to a deal channel.
func (c *Client) PostMessage(ctx context.Context, dealID, body string) (Message, error) {
	var resp Message
	endpoint := fmt.Sprintf("v1/deals/%s/messages", url.PathEscape(dealID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"body": body}, &resp)
	return resp, err
}

// Messages reads a deal channel, oldest first.
func (c *Client) Messages(ctx context.Context, dealID string) ([]Message, error) {
	var resp []Message
	endpoint := fmt.Sprintf("v1/deals/%s/messages", url.PathEscape(dealID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Entitlement returns the current weekly grants for an actor.
func (c *Client) Entitlement(ctx context.Context, actorID string) (Entitlement, error) {
	var resp Entitlement
	endpoint := fmt.Sprintf("v1/actors/%s/entitlement", url.PathEscape(actorID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Plans returns the subscription catalog.
func (c *Client) Plans(ctx context.Context) ([]Plan, error) {
	var resp struct {
		Plans []Plan `json:"plans"`
	}
	err := c.do(ctx, http.MethodGet, "v1/plans", nil, &resp)
	return resp.Plans, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
