package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"consultorio/internal/model"
)

// WeekdayRuleConfig is one day of a practitioner's weekly template.
type WeekdayRuleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Start   string `yaml:"start,omitempty"` // "09:00"
	End     string `yaml:"end,omitempty"`   // "18:00"
}

// PractitionerConfig describes one practitioner and their weekly template.
// Weekdays are keyed 0-6 with 0 = Sunday, matching time.Weekday.
type PractitionerConfig struct {
	ID           string                    `yaml:"id"`
	Name         string                    `yaml:"name"`
	IsActive     bool                      `yaml:"is_active"`
	Schedule     map[int]WeekdayRuleConfig `yaml:"schedule"`
	BlockedDates []string                  `yaml:"blocked_dates,omitempty"` // "2026-01-15"
}

// ServiceConfig is one catalog entry. An empty practitioner falls back to
// the file's default_practitioner before anything reaches the engine.
type ServiceConfig struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	DurationMinutes int    `yaml:"duration_minutes"`
	PriceCents      int64  `yaml:"price_cents"`
	Practitioner    string `yaml:"practitioner,omitempty"`
	Description     string `yaml:"description,omitempty"`
	SortOrder       int    `yaml:"sort_order"`
}

// PractitionersConfig is the root of practitioners.yaml.
type PractitionersConfig struct {
	DefaultPractitioner string               `yaml:"default_practitioner"`
	Practitioners       []PractitionerConfig `yaml:"practitioners"`
	Services            []ServiceConfig      `yaml:"services"`
	// Clinic-wide closures applied to every practitioner's blocked set.
	Holidays []string `yaml:"holidays,omitempty"`
}

// LoadPractitioners loads and validates practitioners.yaml.
func LoadPractitioners(path string) (*PractitionersConfig, error) {
	if path == "" {
		path = "configs/practitioners.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read practitioners config: %w", err)
	}

	var cfg PractitionersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse practitioners config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *PractitionersConfig) validate() error {
	if len(c.Practitioners) == 0 {
		return fmt.Errorf("at least one practitioner is required")
	}

	known := make(map[string]struct{}, len(c.Practitioners))
	for _, p := range c.Practitioners {
		if p.ID == "" {
			return fmt.Errorf("practitioner %q: id is required", p.Name)
		}
		if _, dup := known[p.ID]; dup {
			return fmt.Errorf("duplicate practitioner id %q", p.ID)
		}
		known[p.ID] = struct{}{}

		if err := p.WeekSchedule().Validate(); err != nil {
			return fmt.Errorf("practitioner %s schedule: %w", p.ID, err)
		}
		for _, d := range p.BlockedDates {
			if _, err := model.ParseDate(d); err != nil {
				return fmt.Errorf("practitioner %s blocked date: %w", p.ID, err)
			}
		}
	}

	if c.DefaultPractitioner == "" {
		c.DefaultPractitioner = c.Practitioners[0].ID
	}
	if _, ok := known[c.DefaultPractitioner]; !ok {
		return fmt.Errorf("default practitioner %q is not declared", c.DefaultPractitioner)
	}

	seenSvc := make(map[string]struct{}, len(c.Services))
	for i := range c.Services {
		s := &c.Services[i]
		if s.Practitioner == "" {
			s.Practitioner = c.DefaultPractitioner
		}
		if _, ok := known[s.Practitioner]; !ok {
			return fmt.Errorf("service %s: unknown practitioner %q", s.ID, s.Practitioner)
		}
		if _, dup := seenSvc[s.ID]; dup {
			return fmt.Errorf("duplicate service id %q", s.ID)
		}
		seenSvc[s.ID] = struct{}{}

		if err := s.Model().Validate(); err != nil {
			return err
		}
	}

	for _, h := range c.Holidays {
		if _, err := model.ParseDate(h); err != nil {
			return fmt.Errorf("holiday: %w", err)
		}
	}
	return nil
}

// WeekSchedule converts the YAML weekday map into the model form.
func (p *PractitionerConfig) WeekSchedule() model.WeekSchedule {
	out := make(model.WeekSchedule, len(p.Schedule))
	for day, rule := range p.Schedule {
		if day < 0 || day > 6 {
			continue
		}
		out[time.Weekday(day)] = model.WeekdayRule{
			Enabled: rule.Enabled,
			Start:   rule.Start,
			End:     rule.End,
		}
	}
	return out
}

// Model converts a catalog entry into the model form.
func (s *ServiceConfig) Model() model.Service {
	return model.Service{
		ID:              s.ID,
		Name:            s.Name,
		DurationMinutes: s.DurationMinutes,
		PriceCents:      s.PriceCents,
		Practitioner:    model.PractitionerID(s.Practitioner),
		Description:     s.Description,
		IsActive:        true,
		SortOrder:       s.SortOrder,
	}
}
