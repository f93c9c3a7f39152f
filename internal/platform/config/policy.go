package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// policyFile mirrors the YAML layout of the policy file. Only the sections
// present in the file replace the defaults.
type policyFile struct {
	Timeout   *TimeoutConfig   `yaml:"timeout"`
	Trust     *TrustConfig     `yaml:"trust"`
	Emergency *EmergencyConfig `yaml:"emergency"`
	Dispute   *DisputeConfig   `yaml:"dispute"`
	Scheduler *struct {
		Interval string `yaml:"interval"`
	} `yaml:"scheduler"`
}

// LoadPolicyFile reads timeout categories, reminder lead times, the trust
// delta table and tiers, and emergency thresholds from a YAML file into cfg.
func LoadPolicyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data, cfg)
}

// ParsePolicy applies YAML policy bytes to cfg.
func ParsePolicy(data []byte, cfg *Config) error {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	if pf.Timeout != nil {
		merged := cfg.Timeout
		if pf.Timeout.Default > 0 {
			merged.Default = pf.Timeout.Default
		}
		if pf.Timeout.Categories != nil {
			merged.Categories = pf.Timeout.Categories
		}
		if pf.Timeout.Reminders != nil {
			merged.Reminders = pf.Timeout.Reminders
		}
		if pf.Timeout.TrustExtension > 0 {
			merged.TrustExtension = pf.Timeout.TrustExtension
		}
		cfg.Timeout = merged
	}
	if pf.Trust != nil {
		merged := cfg.Trust
		if pf.Trust.Initial > 0 {
			merged.Initial = pf.Trust.Initial
		}
		if pf.Trust.Max > 0 {
			merged.Max = pf.Trust.Max
		}
		for k, v := range pf.Trust.Deltas {
			if merged.Deltas == nil {
				merged.Deltas = map[string]float64{}
			}
			merged.Deltas[k] = v
		}
		if pf.Trust.Tiers != nil {
			merged.Tiers = pf.Trust.Tiers
		}
		cfg.Trust = merged
	}
	if pf.Emergency != nil {
		cfg.Emergency = *pf.Emergency
	}
	if pf.Dispute != nil {
		if pf.Dispute.GracePeriod > 0 {
			cfg.Dispute.GracePeriod = pf.Dispute.GracePeriod
		}
		if pf.Dispute.ReviewerRoles != nil {
			cfg.Dispute.ReviewerRoles = pf.Dispute.ReviewerRoles
		}
	}
	if pf.Scheduler != nil && pf.Scheduler.Interval != "" {
		if err := parseDurationInto(pf.Scheduler.Interval, &cfg.Scheduler.Interval); err != nil {
			return fmt.Errorf("scheduler interval: %w", err)
		}
	}
	return nil
}
