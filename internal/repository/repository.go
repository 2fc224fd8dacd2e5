package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/graph"
	"github.com/vanshika/cts-envipath/internal/rules"
)

const defaultUpsertBatchSize = 500

// Repository encapsulates rule catalogue persistence in the graph database.
type Repository struct {
	client    graph.Client
	batchSize int
	nowFn     func() time.Time
}

// New instantiates a Repository backed by the supplied graph client.
func New(client graph.Client) *Repository {
	return &Repository{
		client:    client,
		batchSize: defaultUpsertBatchSize,
		nowFn:     time.Now,
	}
}

// WithBatchSize overrides how many rules are written per query.
func (r *Repository) WithBatchSize(size int) *Repository {
	if size > 0 {
		r.batchSize = size
	}
	return r
}

// UpsertRules merges the rules into the catalogue, keyed by code.
func (r *Repository) UpsertRules(ctx context.Context, catalogue []domain.Rule) error {
	updatedAt := formatTime(r.nowFn())
	for start := 0; start < len(catalogue); start += r.batchSize {
		end := start + r.batchSize
		if end > len(catalogue) {
			end = len(catalogue)
		}

		batch := make([]map[string]any, 0, end-start)
		for _, rule := range catalogue[start:end] {
			code := strings.TrimSpace(rule.Code)
			if code == "" {
				return errors.New("rule code is required")
			}
			batch = append(batch, map[string]any{
				"code":        code,
				"likelihood":  rule.Likelihood,
				"description": rule.Description,
			})
		}

		params := map[string]any{
			"rules":     batch,
			"updatedAt": updatedAt,
		}
		if _, err := r.client.ExecuteWrite(ctx, upsertRulesCypher, params); err != nil {
			return fmt.Errorf("upsert rules %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// LoadRules returns every rule in the catalogue ordered by code.
func (r *Repository) LoadRules(ctx context.Context) ([]domain.Rule, error) {
	res, err := r.client.ExecuteRead(ctx, loadRulesCypher, nil)
	if err != nil {
		return nil, fmt.Errorf("load rules query: %w", err)
	}

	out := make([]domain.Rule, 0, len(res.Records))
	for _, record := range res.Records {
		out = append(out, ruleFromRecord(record))
	}
	return out, nil
}

// LoadTable loads the catalogue into an in-memory rule table.
func (r *Repository) LoadTable(ctx context.Context) (rules.Table, error) {
	catalogue, err := r.LoadRules(ctx)
	if err != nil {
		return nil, err
	}
	return rules.NewTable(catalogue)
}

// FetchRule looks up a single rule. The boolean is false when it does not exist.
func (r *Repository) FetchRule(ctx context.Context, code string) (domain.Rule, bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Rule{}, false, errors.New("rule code is required")
	}

	res, err := r.client.ExecuteRead(ctx, fetchRuleCypher, map[string]any{"code": code})
	if err != nil {
		return domain.Rule{}, false, fmt.Errorf("fetch rule %s: %w", code, err)
	}
	if len(res.Records) == 0 {
		return domain.Rule{}, false, nil
	}
	return ruleFromRecord(res.Records[0]), true, nil
}

func ruleFromRecord(record graph.Record) domain.Rule {
	return domain.Rule{
		Code:        toString(record["code"]),
		Likelihood:  toFloat64(record["likelihood"]),
		Description: toString(record["description"]),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

const upsertRulesCypher = `
UNWIND $rules AS rule
MERGE (r:Rule {code: rule.code})
SET r.likelihood = rule.likelihood,
    r.description = rule.description,
    r.updatedAt = $updatedAt
`

const loadRulesCypher = `
MATCH (r:Rule)
RETURN r.code AS code, r.likelihood AS likelihood, r.description AS description
ORDER BY code
`

const fetchRuleCypher = `
MATCH (r:Rule {code: $code})
RETURN r.code AS code, r.likelihood AS likelihood, r.description AS description
LIMIT 1
`
