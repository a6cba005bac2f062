package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models exchange.yml: the plan catalog plus exchange settings.
type Config struct {
	Exchange struct {
		Name            string `yaml:"name"`
		DefaultPlan     string `yaml:"default_plan"`
		DefaultCurrency string `yaml:"default_currency"`
	} `yaml:"exchange"`
	Plans      []PlanConfig `yaml:"plans"`
	Categories []string     `yaml:"categories"`
}

// PlanConfig is one subscription tier as declared in YAML. A missing
// weekly_offer_cap means unlimited submissions.
type PlanConfig struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	PriceMonthly   int      `yaml:"price_monthly"`
	Currency       string   `yaml:"currency"`
	WeeklyOfferCap *int     `yaml:"weekly_offer_cap"`
	ChatEnabled    bool     `yaml:"chat_enabled"`
	Features       []string `yaml:"features"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	cfg, err := FromFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s not found; generate with fx config init", path)
	}
	return cfg, err
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return cfg, err
}

// Validate ensures the catalog meets required structure.
func (c *Config) Validate() error {
	if len(c.Plans) == 0 {
		return fmt.Errorf("config.plans is required")
	}
	seen := map[string]bool{}
	for _, p := range c.Plans {
		if p.ID == "" {
			return fmt.Errorf("config.plans contains a plan without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("config.plans contains duplicate plan id %s", p.ID)
		}
		seen[p.ID] = true
		if p.Name == "" {
			return fmt.Errorf("plan %s has no name", p.ID)
		}
		if p.PriceMonthly < 0 {
			return fmt.Errorf("plan %s has negative price", p.ID)
		}
		if p.WeeklyOfferCap != nil && *p.WeeklyOfferCap < 0 {
			return fmt.Errorf("plan %s has negative weekly offer cap", p.ID)
		}
	}
	if c.Exchange.DefaultPlan != "" && !seen[c.Exchange.DefaultPlan] {
		return fmt.Errorf("exchange.default_plan %s is not in config.plans", c.Exchange.DefaultPlan)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "exchange.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `exchange:
  name: IT Freelance Exchange
  default_plan: FREE
  default_currency: RUB

plans:
  - id: FREE
    name: Free
    price_monthly: 0
    currency: RUB
    weekly_offer_cap: 3
    chat_enabled: false
    features:
      - "3 offers per week"
      - "Basic profile"
      - "Job search"

  - id: PRO
    name: Pro
    price_monthly: 990
    currency: RUB
    chat_enabled: false
    features:
      - "Unlimited offers"
      - "Priority in search"
      - "Verified badge"

  - id: PREMIUM
    name: Premium
    price_monthly: 1990
    currency: RUB
    chat_enabled: true
    features:
      - "Everything in Pro"
      - "Chat with clients"
      - "Priority support"

categories:
  - "UI/UX, Design"
  - "Web Development"
  - "Mobile Development"
  - "Bots & Automation"
  - "QA & Testing"
  - "DevOps & Cloud"
  - "Data & ML"
  - "Cybersecurity"
  - "Technical Writing"
  - "Other"
`
