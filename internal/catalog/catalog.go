package catalog

import (
	"errors"
	"fmt"

	"github.com/karras2025-collab/it-freelance-exchange/internal/config"
	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
)

// ErrNotFound is returned for an unknown plan id. Plan ids form a closed
// set, so hitting this outside of bad input is a logic error upstream.
var ErrNotFound = errors.New("plan not found")

// Catalog is the ordered, read-only table of subscription tiers.
type Catalog struct {
	plans []domain.Plan
	byID  map[string]domain.Plan
}

// FromConfig builds a catalog from the validated plan section of the config.
func FromConfig(cfg *config.Config) (*Catalog, error) {
	if cfg == nil || len(cfg.Plans) == 0 {
		return nil, errors.New("config has no plans")
	}
	c := &Catalog{byID: make(map[string]domain.Plan, len(cfg.Plans))}
	for _, pc := range cfg.Plans {
		currency := pc.Currency
		if currency == "" {
			currency = cfg.Exchange.DefaultCurrency
		}
		p := domain.Plan{
			ID:             pc.ID,
			Name:           pc.Name,
			PriceMonthly:   pc.PriceMonthly,
			Currency:       currency,
			WeeklyOfferCap: pc.WeeklyOfferCap,
			ChatEnabled:    pc.ChatEnabled,
			Features:       pc.Features,
		}
		c.plans = append(c.plans, p)
		c.byID[p.ID] = p
	}
	return c, nil
}

// Plans returns the tiers in catalog order.
func (c *Catalog) Plans() []domain.Plan {
	out := make([]domain.Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// ByID looks up a tier by plan id.
func (c *Catalog) ByID(id string) (domain.Plan, error) {
	p, ok := c.byID[id]
	if !ok {
		return domain.Plan{}, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// Has reports whether the catalog contains the plan id.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}
