// Package rules holds the biotransformation rule catalogue used to describe
// pathway links.
package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/tree"
)

// ErrDuplicateRule is returned when a catalogue lists the same code twice.
var ErrDuplicateRule = errors.New("duplicate rule code")

// Table is an in-memory rule catalogue keyed by rule code.
type Table map[string]domain.Rule

var _ tree.RuleTable = Table(nil)

// NewTable indexes rules by code. Codes are trimmed; blank codes are skipped.
func NewTable(rules []domain.Rule) (Table, error) {
	table := make(Table, len(rules))
	for _, rule := range rules {
		rule.Code = strings.TrimSpace(rule.Code)
		if rule.Code == "" {
			continue
		}
		if _, exists := table[rule.Code]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Code)
		}
		table[rule.Code] = rule
	}
	return table, nil
}

// Lookup implements tree.RuleTable.
func (t Table) Lookup(code string) (domain.Rule, bool) {
	rule, ok := t[code]
	return rule, ok
}

// Rules returns the catalogue sorted by code.
func (t Table) Rules() []domain.Rule {
	out := make([]domain.Rule, 0, len(t))
	for _, rule := range t {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

type catalogue struct {
	Rules []domain.Rule `yaml:"rules"`
}

// Decode reads a catalogue document of the form {rules: [{code, likelihood,
// description}]}. JSON documents of the same shape are accepted too.
func Decode(r io.Reader) (Table, error) {
	var doc catalogue
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, nil
		}
		return nil, fmt.Errorf("decode rule catalogue: %w", err)
	}
	return NewTable(doc.Rules)
}

// Encode writes rules as a catalogue document readable by Decode.
func Encode(w io.Writer, rules []domain.Rule) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(catalogue{Rules: rules}); err != nil {
		return fmt.Errorf("encode rule catalogue: %w", err)
	}
	return enc.Close()
}

// LoadFile reads a catalogue from path.
func LoadFile(path string) (Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	table, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}
