// Package catalog loads the milestone catalog and alias rules from YAML.
// Rules are data: adding one needs no code change.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/okian/signpost/internal/domain/matcher"
	"github.com/okian/signpost/internal/domain/model"
)

// Sentinel kinds for catalog errors.
var (
	ErrLoad    = errors.New("load catalog failed")
	ErrInvalid = errors.New("invalid catalog")
)

// Catalog is the configured set of milestones and the rules that map text
// onto them.
type Catalog struct {
	Milestones []model.Milestone `yaml:"milestones"`
	Rules      []matcher.Rule    `yaml:"rules"`

	byCode map[string]model.Milestone
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML catalog document.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks milestone definitions and that every rule compiles and
// points at a known milestone. It also builds the code index.
func (c *Catalog) Validate() error {
	c.byCode = make(map[string]model.Milestone, len(c.Milestones))
	for i := range c.Milestones {
		m := &c.Milestones[i]
		if m.Code == "" {
			return fmt.Errorf("%w: milestone #%d has no code", ErrInvalid, i)
		}
		if prev, dup := c.byCode[m.Code]; dup {
			if prev.Direction != m.Direction {
				return fmt.Errorf("%w: milestone %q defined with conflicting directions %q and %q", ErrInvalid, m.Code, prev.Direction, m.Direction)
			}
			return fmt.Errorf("%w: milestone %q defined twice", ErrInvalid, m.Code)
		}
		if !m.Category.Valid() {
			return fmt.Errorf("%w: milestone %q has unknown category %q", ErrInvalid, m.Code, m.Category)
		}
		if m.Direction == "" {
			m.Direction = model.Increasing
		}
		if !m.Direction.Valid() {
			return fmt.Errorf("%w: milestone %q has unknown direction %q", ErrInvalid, m.Code, m.Direction)
		}
		if m.Baseline == m.Target {
			return fmt.Errorf("%w: milestone %q baseline equals target", ErrInvalid, m.Code)
		}
		if m.Direction == model.Increasing && m.Target < m.Baseline {
			return fmt.Errorf("%w: milestone %q is increasing but target is below baseline", ErrInvalid, m.Code)
		}
		if m.Direction == model.Decreasing && m.Target > m.Baseline {
			return fmt.Errorf("%w: milestone %q is decreasing but target is above baseline", ErrInvalid, m.Code)
		}
		if m.Primary && m.MonitorOnly {
			return fmt.Errorf("%w: milestone %q cannot be both primary and monitor-only", ErrInvalid, m.Code)
		}
		c.byCode[m.Code] = *m
	}
	for i := range c.Rules {
		r := &c.Rules[i]
		if r.ID == "" {
			r.ID = fmt.Sprintf("rule-%d", i+1)
		}
		if _, ok := c.byCode[r.MilestoneCode]; !ok {
			return fmt.Errorf("%w: rule %q references unknown milestone %q", ErrInvalid, r.ID, r.MilestoneCode)
		}
	}
	if _, err := matcher.New(c.Rules); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Milestone returns the milestone with code.
func (c *Catalog) Milestone(code string) (model.Milestone, bool) {
	m, ok := c.byCode[code]
	return m, ok
}

// Known reports whether code names a configured milestone.
func (c *Catalog) Known(code string) bool {
	_, ok := c.byCode[code]
	return ok
}

// Codes returns all milestone codes sorted.
func (c *Catalog) Codes() []string {
	out := make([]string, 0, len(c.byCode))
	for code := range c.byCode {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Category returns the category of code, if known.
func (c *Catalog) Category(code string) (model.Category, bool) {
	m, ok := c.byCode[code]
	return m.Category, ok
}

// InCategory returns the milestones of cat in catalog order.
func (c *Catalog) InCategory(cat model.Category) []model.Milestone {
	var out []model.Milestone
	for i := range c.Milestones {
		if c.Milestones[i].Category == cat {
			out = append(out, c.Milestones[i])
		}
	}
	return out
}
