// Package timeout computes transaction deadlines and reminder schedules.
package timeout

import (
	"fmt"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/config"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
)

// Category is one entry of the ordered policy.
type Category struct {
	Name     string
	Match    Matcher
	Duration time.Duration
}

// LeadTime is how long before the deadline a reminder fires.
type LeadTime struct {
	Name string
	Lead time.Duration
}

// Policy maps transactions to deadline durations. Categories are evaluated
// in declared order and the first match wins.
type Policy struct {
	Categories []Category
	Default    time.Duration
	Reminders  []LeadTime
	// Extension is added when the step owner holds a tier with extended
	// timeouts.
	Extension time.Duration
}

// NewPolicy compiles the configured predicates. Unknown fields or operators
// fail here, at load time.
func NewPolicy(cfg config.TimeoutConfig) (*Policy, error) {
	if cfg.Default <= 0 {
		return nil, fmt.Errorf("default timeout must be positive")
	}
	p := &Policy{Default: cfg.Default, Extension: cfg.TrustExtension}
	for _, c := range cfg.Categories {
		match, err := ParsePredicate(c.When)
		if err != nil {
			return nil, fmt.Errorf("timeout category %q: %w", c.Name, err)
		}
		p.Categories = append(p.Categories, Category{Name: c.Name, Match: match, Duration: c.Duration})
	}
	for _, r := range cfg.Reminders {
		p.Reminders = append(p.Reminders, LeadTime{Name: r.Name, Lead: r.Lead})
	}
	return p, nil
}

// Duration returns the deadline duration for tx and the name of the category
// that produced it ("default" when none matched).
func (p *Policy) Duration(tx *models.Transaction) (time.Duration, string) {
	for _, c := range p.Categories {
		if c.Match(tx) {
			return c.Duration, c.Name
		}
	}
	return p.Default, "default"
}

// Deadline computes the absolute deadline for tx measured from its deadline
// anchor. extended adds the tier extension.
func (p *Policy) Deadline(tx *models.Transaction, extended bool) time.Time {
	d, _ := p.Duration(tx)
	if extended {
		d += p.Extension
	}
	anchor := tx.DeadlineAnchor
	if anchor.IsZero() {
		anchor = tx.CreatedAt
	}
	return anchor.Add(d)
}
