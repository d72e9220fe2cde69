package oracle

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/okian/signpost/internal/domain/model"
)

const (
	minTermLength      = 4
	defaultMinOverlap  = 0.5
	keywordBaseScore   = 0.3
	keywordOverlapGain = 0.4
)

// Keyword is a local pattern classifier: it suggests a milestone when enough
// of the distinctive terms in its name and description appear in the text.
// It needs no network and is deterministic.
type Keyword struct {
	terms      map[string][]string
	minOverlap float64
}

// NewKeyword builds the term index from milestones.
func NewKeyword(milestones []model.Milestone) *Keyword {
	k := &Keyword{terms: make(map[string][]string, len(milestones)), minOverlap: defaultMinOverlap}
	for i := range milestones {
		m := &milestones[i]
		k.terms[m.Code] = distinctTerms(m.Name + " " + m.Description)
	}
	return k
}

// Suggest implements Suggester.
func (k *Keyword) Suggest(ctx context.Context, text string) ([]model.Suggestion, error) {
	words := make(map[string]struct{})
	for _, w := range distinctTerms(text) {
		words[w] = struct{}{}
	}
	var out []model.Suggestion
	for code, terms := range k.terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(terms) == 0 {
			continue
		}
		hits := 0
		for _, t := range terms {
			if _, ok := words[t]; ok {
				hits++
			}
		}
		overlap := float64(hits) / float64(len(terms))
		if overlap < k.minOverlap {
			continue
		}
		out = append(out, model.Suggestion{
			MilestoneCode: code,
			Confidence:    keywordBaseScore + keywordOverlapGain*overlap,
			Rationale:     fmt.Sprintf("shares %d of %d terms with the milestone description", hits, len(terms)),
		})
	}
	return out, nil
}

func distinctTerms(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	}) {
		if len(f) < minTermLength || stopWords[f] {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

var stopWords = map[string]bool{
	"with": true, "that": true, "this": true, "from": true, "than": true,
	"into": true, "over": true, "more": true, "less": true, "model": true,
	"models": true, "percent": true, "reaches": true, "achieves": true,
}
