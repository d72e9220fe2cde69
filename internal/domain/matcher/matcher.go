// Package matcher maps claim text to candidate milestones using configured
// regex and keyword rules.
package matcher

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/signpost/internal/domain/model"
)

// DefaultLimit is the number of candidates kept per claim.
const DefaultLimit = 2

// valueGroup is the named capture group that carries an observed value.
const valueGroup = "value"

// Sentinel kinds for rule errors.
var (
	ErrInvalidRule = errors.New("invalid alias rule")
)

// Rule maps a pattern or keyword set to a milestone.
type Rule struct {
	ID             string         `yaml:"id" json:"id"`
	MilestoneCode  string         `yaml:"milestone" json:"milestone_code"`
	Pattern        string         `yaml:"pattern" json:"pattern,omitempty"`
	Keywords       []string       `yaml:"keywords" json:"keywords,omitempty"`
	BaseConfidence float64        `yaml:"confidence" json:"base_confidence"`
	Relation       model.Relation `yaml:"relation" json:"relation"`
	Rationale      string         `yaml:"rationale" json:"rationale"`
}

type compiledRule struct {
	Rule
	re       *regexp.Regexp
	keywords []string
}

// Matcher evaluates every rule against claim text. It is safe for
// concurrent use.
type Matcher struct {
	rules []compiledRule
	limit int
}

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithLimit sets how many candidates Match keeps.
func WithLimit(k int) Option {
	return func(m *Matcher) {
		if k > 0 {
			m.limit = k
		}
	}
}

// New compiles rules. Patterns are matched case-insensitively.
func New(rules []Rule, opts ...Option) (*Matcher, error) {
	m := &Matcher{limit: DefaultLimit}
	for _, opt := range opts {
		opt(m)
	}
	for i := range rules {
		cr, err := compile(rules[i])
		if err != nil {
			return nil, err
		}
		m.rules = append(m.rules, cr)
	}
	return m, nil
}

func compile(r Rule) (compiledRule, error) { //nolint:gocritic // rules are small config records
	if strings.TrimSpace(r.MilestoneCode) == "" {
		return compiledRule{}, fmt.Errorf("%w: rule %q has no milestone", ErrInvalidRule, r.ID)
	}
	if r.BaseConfidence < 0 || r.BaseConfidence > 1 {
		return compiledRule{}, fmt.Errorf("%w: rule %q confidence %.2f outside [0,1]", ErrInvalidRule, r.ID, r.BaseConfidence)
	}
	if r.Relation == "" {
		r.Relation = model.RelationSupports
	}
	if !r.Relation.Valid() {
		return compiledRule{}, fmt.Errorf("%w: rule %q relation %q", ErrInvalidRule, r.ID, r.Relation)
	}
	cr := compiledRule{Rule: r}
	if r.Pattern != "" {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.ID, err)
		}
		cr.re = re
	}
	for _, kw := range r.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			cr.keywords = append(cr.keywords, kw)
		}
	}
	if cr.re == nil && len(cr.keywords) == 0 {
		return compiledRule{}, fmt.Errorf("%w: rule %q needs a pattern or keywords", ErrInvalidRule, r.ID)
	}
	return cr, nil
}

// Limit returns the configured cap on candidates per claim.
func (m *Matcher) Limit() int { return m.limit }

// Match returns the top candidates for text, at most Limit of them.
func (m *Matcher) Match(text string) []model.Candidate {
	all := m.Candidates(text)
	if len(all) > m.limit {
		all = all[:m.limit]
	}
	return all
}

// Candidates returns every matched milestone once, keeping the highest
// confidence match per milestone, sorted by confidence descending and then
// milestone code.
func (m *Matcher) Candidates(text string) []model.Candidate {
	lower := strings.ToLower(text)
	best := make(map[string]model.Candidate)
	for i := range m.rules {
		c, ok := m.rules[i].match(text, lower)
		if !ok {
			continue
		}
		if prev, seen := best[c.MilestoneCode]; seen && prev.BaseConfidence >= c.BaseConfidence {
			continue
		}
		best[c.MilestoneCode] = c
	}
	out := make([]model.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	SortCandidates(out)
	return out
}

// SortCandidates orders candidates by confidence descending, then code.
func SortCandidates(cs []model.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].BaseConfidence != cs[j].BaseConfidence {
			return cs[i].BaseConfidence > cs[j].BaseConfidence
		}
		return cs[i].MilestoneCode < cs[j].MilestoneCode
	})
}

func (r *compiledRule) match(text, lower string) (model.Candidate, bool) {
	c := model.Candidate{
		MilestoneCode:  r.MilestoneCode,
		BaseConfidence: r.BaseConfidence,
		Relation:       r.Relation,
		Rationale:      r.Rationale,
		Source:         model.SourceRule,
	}
	if r.re != nil {
		sub := r.re.FindStringSubmatch(text)
		if sub == nil {
			return model.Candidate{}, false
		}
		if idx := r.re.SubexpIndex(valueGroup); idx > 0 && idx < len(sub) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(sub[idx]), 64); err == nil {
				c.ObservedValue = &v
			}
		}
		if c.Rationale == "" {
			c.Rationale = fmt.Sprintf("matched pattern %q", sub[0])
		}
		return c, true
	}
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			if c.Rationale == "" {
				c.Rationale = fmt.Sprintf("matched keyword %q", kw)
			}
			return c, true
		}
	}
	return model.Candidate{}, false
}
