package tree

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vanshika/cts-envipath/internal/domain"
)

// RuleURLBase is the EAWAG-BBD page describing a rule; the rule code is appended.
const RuleURLBase = "http://umbbd.ethz.ch/servlets/rule.jsp?rule="

// RuleTable resolves a rule code to its descriptive metadata.
type RuleTable interface {
	Lookup(code string) (domain.Rule, bool)
}

// Link is a transformation step between two nodes, or an indirection marker
// when Indirection is set.
type Link struct {
	ID          string          `json:"id,omitempty"`
	Source      int             `json:"source"`
	Target      int             `json:"target"`
	Indirection bool            `json:"pseudo"`
	ReactionRef string          `json:"idreaction,omitempty"`
	Name        string          `json:"name,omitempty"`
	Multistep   json.RawMessage `json:"multistep,omitempty"`
	Scenarios   json.RawMessage `json:"scenarios,omitempty"`

	// RuleName is the rule name attached by the reaction lookup.
	RuleName string `json:"rule_name,omitempty"`

	RuleCode        string   `json:"rule,omitempty"`
	RuleURL         string   `json:"rule_url,omitempty"`
	Likelihood      *float64 `json:"likelihood,omitempty"`
	RuleDescription string   `json:"rule_description,omitempty"`
}

func newLink(pos int, rec domain.LinkRecord) (*Link, error) {
	if rec.Source == nil || rec.Target == nil {
		return nil, fmt.Errorf("%w: link %d is missing an endpoint", ErrMalformedGraph, pos)
	}

	link := &Link{
		ID:          rec.ID,
		Source:      *rec.Source,
		Target:      *rec.Target,
		Indirection: rec.IsPseudo(),
		ReactionRef: rec.IDReaction,
		Name:        rec.Name,
		Multistep:   rec.Multistep,
		Scenarios:   rec.Scenarios,
	}
	if rec.Rule != nil {
		link.RuleName = *rec.Rule
	}
	return link, nil
}

// ResolveRuleCode derives the rule code from the last whitespace-delimited
// token of the rule name, falling back to the link name. A blank name leaves
// the code unset.
func (l *Link) ResolveRuleCode() {
	raw := l.RuleName
	if strings.TrimSpace(raw) == "" {
		raw = l.Name
	}
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return
	}
	l.RuleCode = tokens[len(tokens)-1]
	l.RuleURL = RuleURLBase + l.RuleCode
}

// Enrich copies likelihood and description from the table when the rule code
// is known. It reports whether the lookup hit; a miss leaves the link as is.
func (l *Link) Enrich(table RuleTable) bool {
	if table == nil || l.RuleCode == "" {
		return false
	}
	rule, ok := table.Lookup(l.RuleCode)
	if !ok {
		return false
	}
	likelihood := rule.Likelihood
	l.Likelihood = &likelihood
	l.RuleDescription = rule.Description
	return true
}
