// Package tree reconstructs a predicted transformation pathway into a rooted
// metabolite tree.
//
// Nodes and links are kept in flat arenas addressed by their position in the
// input. Building the tree never aliases arena nodes: every position in the
// result is a fresh copy, so a metabolite reached through two upstream paths
// shows up as two independently expanded subtrees.
package tree

import (
	"fmt"

	"github.com/vanshika/cts-envipath/internal/domain"
)

// Tree owns the node and link arenas of one pathway.
type Tree struct {
	nodes      []*Node
	links      []*Link
	bySource   map[int][]*Link
	root       *Node
	maxDepth   int
	ruleMisses int
}

// FromDocument builds a Tree from a finished prediction document.
func FromDocument(doc domain.PathwayDocument, table RuleTable) (*Tree, error) {
	switch doc.Completed {
	case domain.CompletedError:
		return nil, ErrUpstreamFailed
	case domain.CompletedFalse:
		return nil, ErrIncomplete
	}
	return New(doc.Nodes, doc.Links, table)
}

// New constructs the arenas, resolves every link's rule code and enriches it
// from table. table may be nil, in which case links carry codes only.
func New(nodes []domain.NodeRecord, links []domain.LinkRecord, table RuleTable) (*Tree, error) {
	t := &Tree{
		nodes:    make([]*Node, 0, len(nodes)),
		links:    make([]*Link, 0, len(links)),
		bySource: make(map[int][]*Link),
	}
	if err := t.buildNodes(nodes); err != nil {
		return nil, err
	}
	if err := t.buildLinks(links, table); err != nil {
		return nil, err
	}
	if err := t.validateEndpoints(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) buildNodes(records []domain.NodeRecord) error {
	for idx, rec := range records {
		node, err := newNode(idx, rec)
		if err != nil {
			return err
		}
		t.nodes = append(t.nodes, node)
		if node.Depth > t.maxDepth {
			t.maxDepth = node.Depth
		}
		if node.Depth == 0 {
			if t.root != nil {
				return fmt.Errorf("%w: nodes %d and %d both have depth 0", ErrMalformedGraph, t.root.Index, idx)
			}
			t.root = node
		}
	}
	if t.root == nil {
		return fmt.Errorf("%w: no node with depth 0", ErrMalformedGraph)
	}
	return nil
}

func (t *Tree) buildLinks(records []domain.LinkRecord, table RuleTable) error {
	for pos, rec := range records {
		link, err := newLink(pos, rec)
		if err != nil {
			return err
		}
		link.ResolveRuleCode()
		if link.RuleCode != "" && table != nil && !link.Enrich(table) {
			t.ruleMisses++
		}
		t.links = append(t.links, link)
		t.bySource[link.Source] = append(t.bySource[link.Source], link)
	}
	return nil
}

// validateEndpoints checks that real links land on a node and that every
// link starts at a node or at a grouping id introduced by an indirection.
func (t *Tree) validateEndpoints() error {
	groups := make(map[int]struct{})
	for _, link := range t.links {
		if link.Indirection {
			groups[link.Target] = struct{}{}
		}
	}
	for pos, link := range t.links {
		if !link.Indirection && !t.hasNode(link.Target) {
			return fmt.Errorf("%w: link %d targets unknown node %d", ErrMalformedGraph, pos, link.Target)
		}
		if t.hasNode(link.Source) {
			continue
		}
		if _, ok := groups[link.Source]; !ok {
			return fmt.Errorf("%w: link %d starts at unknown node %d", ErrMalformedGraph, pos, link.Source)
		}
	}
	return nil
}

func (t *Tree) hasNode(index int) bool {
	return index >= 0 && index < len(t.nodes)
}

// Root returns the arena's depth-0 node. It has no metabolites; use Build
// for the assembled tree.
func (t *Tree) Root() *Node { return t.root }

// MaxDepth returns the largest depth seen among the nodes.
func (t *Tree) MaxDepth() int { return t.maxDepth }

// Nodes returns the node arena in input order.
func (t *Tree) Nodes() []*Node { return t.nodes }

// Links returns the enriched link arena in input order.
func (t *Tree) Links() []*Link { return t.links }

// RuleMisses returns how many links had a rule code the table did not know.
func (t *Tree) RuleMisses() int { return t.ruleMisses }

// LinksFrom returns the links whose source is index, in input order.
func (t *Tree) LinksFrom(index int) []*Link {
	return t.bySource[index]
}

// LinksBetween returns the links from source to target, in input order.
func (t *Tree) LinksBetween(source, target int) []*Link {
	var out []*Link
	for _, link := range t.bySource[source] {
		if link.Target == target {
			out = append(out, link)
		}
	}
	return out
}

type frame struct {
	node *Node
	next int
}

// Build assembles the metabolite tree from the root. Each call returns a new,
// independently owned tree. The traversal tracks the active root-to-node path
// and fails with ErrCycleDetected instead of revisiting a node on it.
//
// Multiplicity follows the links, not the scan: k links sharing a
// (source, target) pair give k children. A naive rescan of every outgoing
// link would instead attach k*k copies for that pair.
func (t *Tree) Build() (*Node, error) {
	root := t.root.clone()
	if err := t.expand(root); err != nil {
		return nil, err
	}

	onPath := make([]bool, len(t.nodes))
	onPath[root.Index] = true
	stack := []*frame{{node: root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next == len(top.node.Metabolites) {
			onPath[top.node.Index] = false
			stack = stack[:len(stack)-1]
			continue
		}

		child := top.node.Metabolites[top.next]
		top.next++
		if onPath[child.Index] {
			return nil, fmt.Errorf("%w: node %d is reached again below itself", ErrCycleDetected, child.Index)
		}
		if err := t.expand(child); err != nil {
			return nil, err
		}
		onPath[child.Index] = true
		stack = append(stack, &frame{node: child})
	}
	return root, nil
}

// expand fills n.Metabolites with one fresh copy per matching link. Outgoing
// links that share a (source, target) pair are resolved once, so a pair
// carried by k links yields exactly k children.
func (t *Tree) expand(n *Node) error {
	seenPairs := make(map[[2]int]struct{})
	seenGroups := make(map[int]struct{})

	resolve := func(source, target int) error {
		key := [2]int{source, target}
		if _, ok := seenPairs[key]; ok {
			return nil
		}
		seenPairs[key] = struct{}{}
		for _, match := range t.LinksBetween(source, target) {
			if !t.hasNode(match.Target) {
				return fmt.Errorf("%w: link from %d resolves to unknown node %d", ErrMalformedGraph, source, match.Target)
			}
			child := t.nodes[match.Target].clone()
			child.annotate(match)
			n.Metabolites = append(n.Metabolites, child)
		}
		return nil
	}

	for _, link := range t.LinksFrom(n.Index) {
		if !link.Indirection {
			if err := resolve(link.Source, link.Target); err != nil {
				return err
			}
			continue
		}
		if _, ok := seenGroups[link.Target]; ok {
			continue
		}
		seenGroups[link.Target] = struct{}{}
		for _, secondary := range t.LinksFrom(link.Target) {
			if err := resolve(secondary.Source, secondary.Target); err != nil {
				return err
			}
		}
	}
	return nil
}
