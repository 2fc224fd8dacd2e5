package tree

import (
	"encoding/json"
	"fmt"

	"github.com/vanshika/cts-envipath/internal/domain"
)

// Node is a chemical structure at a given generation depth. Within a built
// tree every Node is an independent copy owned by its parent, so the same
// pathway vertex may appear several times under different branches.
type Node struct {
	Index     int             `json:"node_num"`
	ID        string          `json:"id,omitempty"`
	Depth     int             `json:"depth"`
	Smiles    string          `json:"smiles"`
	AtomCount *int            `json:"atomCount,omitempty"`
	DT50s     json.RawMessage `json:"dt50s,omitempty"`
	Image     string          `json:"image,omitempty"`
	ImageSize *int            `json:"imageSize,omitempty"`
	Name      string          `json:"name,omitempty"`
	Proposed  json.RawMessage `json:"proposed,omitempty"`

	// Metadata of the link that produced this node; unset on the root.
	Rule            string   `json:"rule,omitempty"`
	RuleURL         string   `json:"rule_url,omitempty"`
	Likelihood      *float64 `json:"likelihood,omitempty"`
	LinkDescription string   `json:"link_desc,omitempty"`

	Metabolites []*Node `json:"metabolites"`
}

func newNode(index int, rec domain.NodeRecord) (*Node, error) {
	if rec.Depth == nil {
		return nil, fmt.Errorf("%w: node %d has no depth", ErrMalformedGraph, index)
	}
	if *rec.Depth < 0 {
		return nil, fmt.Errorf("%w: node %d has negative depth %d", ErrMalformedGraph, index, *rec.Depth)
	}

	smiles := rec.Smiles
	if smiles == "" {
		smiles = rec.Structure
	}

	return &Node{
		Index:       index,
		ID:          rec.ID,
		Depth:       *rec.Depth,
		Smiles:      smiles,
		AtomCount:   rec.AtomCount,
		DT50s:       rec.DT50s,
		Image:       rec.Image,
		ImageSize:   rec.ImageSize,
		Name:        rec.Name,
		Proposed:    rec.Proposed,
		Metabolites: []*Node{},
	}, nil
}

// IsLeaf reports whether the node has no metabolites.
func (n *Node) IsLeaf() bool {
	return len(n.Metabolites) == 0
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	total := 1
	for _, child := range n.Metabolites {
		total += child.Count()
	}
	return total
}

// clone returns a copy of the vertex attributes with no metabolites. Raw JSON
// fields are shared; they are never mutated after decoding.
func (n *Node) clone() *Node {
	cp := *n
	cp.Metabolites = []*Node{}
	return &cp
}

func (n *Node) annotate(link *Link) {
	n.Rule = link.RuleCode
	n.RuleURL = link.RuleURL
	n.Likelihood = link.Likelihood
	n.LinkDescription = link.RuleDescription
}
