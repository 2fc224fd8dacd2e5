// Package generator synthesises pathway documents and a matching rule
// catalogue for exercising the tree builder without a prediction service.
package generator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/vanshika/cts-envipath/internal/domain"
)

// Dataset contains the generated pathways and rule catalogue.
type Dataset struct {
	Pathways []domain.PathwayDocument `json:"pathways"`
	Rules    []domain.Rule            `json:"rules"`
}

// Generator produces synthetic pathways shaped like prediction output: depth
// ordered nodes, transformation links between consecutive generations and
// optional pseudo-link grouping.
type Generator struct {
	cfg   Config
	rand  *rand.Rand
	codes []string
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	defaults := DefaultConfig()
	if cfg.NumPathways <= 0 {
		cfg.NumPathways = defaults.NumPathways
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaults.MaxDepth
	}
	if cfg.MaxBranching <= 0 {
		cfg.MaxBranching = defaults.MaxBranching
	}
	if cfg.RuleCount <= 0 {
		cfg.RuleCount = defaults.RuleCount
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	codes := make([]string, cfg.RuleCount)
	for i := range codes {
		codes[i] = fmt.Sprintf("bt%04d", i+1)
	}
	return &Generator{
		cfg:   cfg,
		rand:  rand.New(rand.NewSource(cfg.Seed)),
		codes: codes,
	}
}

// Generate synthesises the dataset. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	pathways := make([]domain.PathwayDocument, g.cfg.NumPathways)
	for i := range pathways {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		pathways[i] = g.pathway(i + 1)
	}
	return Dataset{Pathways: pathways, Rules: g.catalogue()}, nil
}

type edge struct {
	parent, child int
	code          string
}

func (g *Generator) pathway(seq int) domain.PathwayDocument {
	var (
		nodes  []domain.NodeRecord
		edges  []edge
		levels [][]int
	)
	addNode := func(depth int) int {
		idx := len(nodes)
		d := depth
		atoms := 2 + g.rand.Intn(20)
		nodes = append(nodes, domain.NodeRecord{
			ID:        fmt.Sprintf("pw-%05d/node/%d", seq, idx),
			Depth:     &d,
			Smiles:    g.randomSmiles(atoms),
			AtomCount: &atoms,
			Name:      fmt.Sprintf("metabolite %d", idx),
		})
		return idx
	}

	levels = append(levels, []int{addNode(0)})
	for depth := 1; depth <= g.cfg.MaxDepth; depth++ {
		var level []int
		parents := levels[depth-1]
		for _, parent := range parents {
			for n := g.rand.Intn(g.cfg.MaxBranching + 1); n > 0; n-- {
				child := addNode(depth)
				level = append(level, child)
				edges = append(edges, edge{parent: parent, child: child, code: g.randomCode()})

				if len(parents) > 1 && g.rand.Float64() < g.cfg.ConvergenceChance {
					other := parents[g.rand.Intn(len(parents))]
					if other != parent {
						edges = append(edges, edge{parent: other, child: child, code: g.randomCode()})
					}
				}
			}
		}
		if len(level) == 0 {
			break
		}
		levels = append(levels, level)
	}

	return domain.PathwayDocument{
		ID:        fmt.Sprintf("pw-%05d", seq),
		Name:      fmt.Sprintf("synthetic pathway %d", seq),
		Completed: domain.CompletedTrue,
		Nodes:     nodes,
		Links:     g.links(seq, len(nodes), edges),
	}
}

// links emits the edges grouped by parent. Grouping ids are numbered after
// the last node so they never collide with a node index.
func (g *Generator) links(seq, nodeCount int, edges []edge) []domain.LinkRecord {
	byParent := make(map[int][]edge)
	var order []int
	for _, e := range edges {
		if _, seen := byParent[e.parent]; !seen {
			order = append(order, e.parent)
		}
		byParent[e.parent] = append(byParent[e.parent], e)
	}

	var out []domain.LinkRecord
	nextGroup := nodeCount
	for _, parent := range order {
		products := byParent[parent]
		if len(products) > 1 && g.rand.Float64() < g.cfg.IndirectionChance {
			group := nextGroup
			nextGroup++
			out = append(out, g.link(seq, len(out), parent, group, true, ""))
			for _, e := range products {
				out = append(out, g.link(seq, len(out), group, e.child, false, e.code))
			}
			continue
		}
		for _, e := range products {
			out = append(out, g.link(seq, len(out), e.parent, e.child, false, e.code))
		}
	}
	return out
}

func (g *Generator) link(seq, idx, source, target int, pseudo bool, code string) domain.LinkRecord {
	src, dst, p := source, target, pseudo
	rec := domain.LinkRecord{
		ID:     fmt.Sprintf("pw-%05d/link/%d", seq, idx),
		Source: &src,
		Target: &dst,
		Pseudo: &p,
	}
	if pseudo {
		return rec
	}
	rec.IDReaction = fmt.Sprintf("pw-%05d/reaction/%d", seq, idx)
	rec.Name = "reaction " + code
	if g.rand.Intn(2) == 0 {
		rule := "rule " + code
		rec.Rule = &rule
	}
	return rec
}

func (g *Generator) catalogue() []domain.Rule {
	rules := make([]domain.Rule, 0, len(g.codes))
	for _, code := range g.codes {
		if g.rand.Float64() < g.cfg.MissingRuleChance {
			continue
		}
		rules = append(rules, domain.Rule{
			Code:        code,
			Likelihood:  float64(g.rand.Intn(1000)) / 1000,
			Description: g.randomDescription(),
		})
	}
	return rules
}

func (g *Generator) randomCode() string {
	return g.codes[g.rand.Intn(len(g.codes))]
}

func (g *Generator) randomSmiles(atoms int) string {
	var b strings.Builder
	for i := 0; i < atoms; i++ {
		switch r := g.rand.Intn(10); {
		case r == 0:
			b.WriteString("O")
		case r == 1 && i > 0:
			b.WriteString("N")
		default:
			b.WriteString("C")
		}
	}
	return b.String()
}

var (
	reactionKinds = []string{"hydroxylation", "dealkylation", "oxidation", "reduction", "hydrolysis", "decarboxylation", "dehalogenation"}
	reactionSites = []string{"primary alcohol", "secondary amine", "aromatic ring", "ester", "aldehyde", "nitrile", "methyl group"}
)

func (g *Generator) randomDescription() string {
	kind := reactionKinds[g.rand.Intn(len(reactionKinds))]
	site := reactionSites[g.rand.Intn(len(reactionSites))]
	return kind + " of " + site
}
