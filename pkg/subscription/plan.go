package subscription

import (
	"errors"
	"fmt"
	"strings"
)

// Plan is a subscription tier. Price is in major currency units.
type Plan struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Description    string `yaml:"description" json:"description,omitempty"`
	Price          int64  `yaml:"price" json:"price"`
	Currency       int    `yaml:"currency" json:"currency"`
	MaxItems       int    `yaml:"max_items" json:"max_items"`
	DurationMonths int    `yaml:"duration_months" json:"duration_months"`
}

// AmountMinor is the invoice amount in minor units (kopiykas for UAH).
func (p Plan) AmountMinor() int64 {
	return p.Price * 100
}

func (p Plan) Validate() error {
	var problems []string
	if strings.TrimSpace(p.ID) == "" {
		problems = append(problems, "empty id")
	}
	if p.Price <= 0 {
		problems = append(problems, "price must be positive")
	}
	if p.MaxItems <= 0 {
		problems = append(problems, "max_items must be positive")
	}
	if p.DurationMonths <= 0 {
		problems = append(problems, "duration_months must be positive")
	}
	if len(problems) > 0 {
		return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %q: %s", p.ID, strings.Join(problems, ", ")))
	}
	return nil
}

// DefaultPlans is the built-in catalog used when no plans file is configured.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "basic", Name: "Basic", Description: "One book at a time", Price: 300, Currency: 980, MaxItems: 1, DurationMonths: 1},
		{ID: "standard", Name: "Standard", Description: "Up to three books at a time", Price: 500, Currency: 980, MaxItems: 3, DurationMonths: 1},
		{ID: "premium", Name: "Premium", Description: "Up to six books at a time", Price: 800, Currency: 980, MaxItems: 6, DurationMonths: 1},
	}
}
