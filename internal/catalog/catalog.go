// Package catalog loads the read-only registry of compliance obligations and
// the reminder templates that go with them.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"compliance_notifier/internal/domain/obligation"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Placeholders understood by the renderer.
const (
	PlaceholderCompanyName    = "{{companyName}}"
	PlaceholderRegulationName = "{{regulationName}}"
	PlaceholderDeadlineDate   = "{{deadlineDate}}"
)

var placeholderPattern = regexp.MustCompile(`\{\{[^}]*\}\}`)

var knownPlaceholders = map[string]bool{
	PlaceholderCompanyName:    true,
	PlaceholderRegulationName: true,
	PlaceholderDeadlineDate:   true,
}

// ConfigError is a catalog defect detected at load time. It is fatal at startup.
type ConfigError struct {
	RuleID string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.RuleID == "" {
		return "catalog: " + e.Reason
	}
	return fmt.Sprintf("catalog: rule %s: %s", e.RuleID, e.Reason)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Template is the default reminder text for one lead day.
type Template struct {
	Subject string
	Intro   string
	Note    string
}

// Catalog is immutable after construction.
type Catalog struct {
	rules     []obligation.Rule
	byID      map[string]int
	templates map[int]Template
}

// New validates rules and templates and builds a Catalog.
// requiredLeadDays lists lead days that must have a template.
func New(rules []obligation.Rule, templates map[int]Template, requiredLeadDays []int) (*Catalog, error) {
	c := &Catalog{
		rules:     make([]obligation.Rule, 0, len(rules)),
		byID:      make(map[string]int, len(rules)),
		templates: make(map[int]Template, len(templates)),
	}

	for _, r := range rules {
		if strings.TrimSpace(r.ID) == "" {
			return nil, &ConfigError{Reason: "rule with empty id"}
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, &ConfigError{RuleID: r.ID, Reason: "duplicate id"}
		}
		if strings.TrimSpace(r.Title) == "" {
			return nil, &ConfigError{RuleID: r.ID, Reason: "empty title"}
		}
		if err := r.Recurrence.Validate(); err != nil {
			return nil, &ConfigError{RuleID: r.ID, Reason: err.Error()}
		}
		r.Tags = append([]string(nil), r.Tags...)
		c.byID[r.ID] = len(c.rules)
		c.rules = append(c.rules, r)
	}

	for lead, tpl := range templates {
		if lead <= 0 {
			return nil, &ConfigError{Reason: fmt.Sprintf("template for invalid lead day %d", lead)}
		}
		for _, part := range []string{tpl.Subject, tpl.Intro, tpl.Note} {
			if err := CheckPlaceholders(part); err != nil {
				return nil, &ConfigError{Reason: fmt.Sprintf("template %d: %v", lead, err)}
			}
		}
		if strings.TrimSpace(tpl.Subject) == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("template %d: empty subject", lead)}
		}
		c.templates[lead] = tpl
	}
	for _, lead := range requiredLeadDays {
		if _, ok := c.templates[lead]; !ok {
			return nil, &ConfigError{Reason: fmt.Sprintf("missing template for lead day %d", lead)}
		}
	}

	return c, nil
}

// CheckPlaceholders fails on any {{...}} token the renderer cannot resolve.
func CheckPlaceholders(text string) error {
	for _, p := range placeholderPattern.FindAllString(text, -1) {
		if !knownPlaceholders[p] {
			return fmt.Errorf("unresolved placeholder %s", p)
		}
	}
	return nil
}

// ListAll returns a copy of every rule in catalog order.
func (c *Catalog) ListAll() []obligation.Rule {
	out := make([]obligation.Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Get looks up a rule by id.
func (c *Catalog) Get(id string) (obligation.Rule, bool) {
	i, ok := c.byID[id]
	if !ok {
		return obligation.Rule{}, false
	}
	return c.rules[i], true
}

// Template returns the default template for a lead day.
func (c *Catalog) Template(leadDays int) (Template, bool) {
	t, ok := c.templates[leadDays]
	return t, ok
}

// LeadDays returns the lead days that have templates, descending.
func (c *Catalog) LeadDays() []int {
	out := make([]int, 0, len(c.templates))
	for d := range c.templates {
		out = append(out, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// Len is the number of rules.
func (c *Catalog) Len() int { return len(c.rules) }

type fileRecurrence struct {
	Kind   string `yaml:"kind"`
	Offset *int   `yaml:"offset"`
	Day    string `yaml:"day"`
	Month  int    `yaml:"month"`
	Lag    string `yaml:"lag"`
}

type fileRule struct {
	ID           string         `yaml:"id"`
	Category     string         `yaml:"category"`
	Title        string         `yaml:"title"`
	Description  string         `yaml:"description"`
	Recurrence   fileRecurrence `yaml:"recurrence"`
	SubjectType  string         `yaml:"subject_type"`
	MinEmployees *int           `yaml:"min_employees"`
	Tags         []string       `yaml:"tags"`
}

type fileTemplate struct {
	Subject string `yaml:"subject"`
	Intro   string `yaml:"intro"`
	Note    string `yaml:"note"`
}

type file struct {
	Templates map[int]fileTemplate `yaml:"templates"`
	Rules     []fileRule           `yaml:"rules"`
}

// Load parses a catalog YAML document.
func Load(data []byte, requiredLeadDays []int) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}

	rules := make([]obligation.Rule, 0, len(f.Rules))
	for _, fr := range f.Rules {
		rec, err := fr.Recurrence.toRecurrence()
		if err != nil {
			return nil, &ConfigError{RuleID: fr.ID, Reason: err.Error()}
		}
		rules = append(rules, obligation.Rule{
			ID:           fr.ID,
			Category:     obligation.Category(fr.Category),
			Title:        fr.Title,
			Description:  fr.Description,
			Recurrence:   rec,
			SubjectType:  fr.SubjectType,
			MinEmployees: fr.MinEmployees,
			Tags:         fr.Tags,
		})
	}

	templates := make(map[int]Template, len(f.Templates))
	for lead, ft := range f.Templates {
		templates[lead] = Template{Subject: ft.Subject, Intro: ft.Intro, Note: ft.Note}
	}
	return New(rules, templates, requiredLeadDays)
}

// LoadFile reads a catalog from disk.
func LoadFile(path string, requiredLeadDays []int) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Load(data, requiredLeadDays)
}

// Default returns the catalog compiled into the binary.
func Default(requiredLeadDays []int) (*Catalog, error) {
	return Load(defaultCatalogYAML, requiredLeadDays)
}

func (fr fileRecurrence) toRecurrence() (obligation.Recurrence, error) {
	kind := obligation.RecurrenceKind(fr.Kind)
	rec := obligation.Recurrence{Kind: kind}

	switch kind {
	case obligation.KindRelativeToFiscalYear:
		if fr.Offset == nil {
			return rec, fmt.Errorf("%s requires offset", kind)
		}
		rec.MonthOffset = *fr.Offset
	case obligation.KindFixedDayOfMonth:
		if strings.EqualFold(fr.Day, "last") {
			rec.Kind = obligation.KindEndOfMonth
			break
		}
		day, err := parseDay(fr.Day)
		if err != nil {
			return rec, err
		}
		rec.Day = day
	case obligation.KindEndOfMonth:
	case obligation.KindFixedMonth:
		rec.Month = time.Month(fr.Month)
		rec.Day = 1
		if fr.Day != "" {
			day, err := parseDay(fr.Day)
			if err != nil {
				return rec, err
			}
			rec.Day = day
		}
	case obligation.KindEventBased:
		rec.Lag = fr.Lag
	default:
		return rec, fmt.Errorf("unknown recurrence kind %q", fr.Kind)
	}
	return rec, nil
}

func parseDay(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("day is required")
	}
	day, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("malformed day %q", s)
	}
	return day, nil
}
