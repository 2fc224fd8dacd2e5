package domain

import "encoding/json"

// Completion states reported by the prediction job.
const (
	CompletedTrue  = "true"
	CompletedFalse = "false"
	CompletedError = "error"
)

// PathwayDocument is the JSON document returned for a predicted pathway.
type PathwayDocument struct {
	ID        string       `json:"id,omitempty"`
	Name      string       `json:"pathwayName,omitempty"`
	Completed string       `json:"completed"`
	Nodes     []NodeRecord `json:"nodes"`
	Links     []LinkRecord `json:"links"`
}

// NodeRecord is one vertex of the pathway graph. Absent keys decode as unset.
type NodeRecord struct {
	ID        string          `json:"id,omitempty"`
	Depth     *int            `json:"depth,omitempty"`
	Smiles    string          `json:"smiles,omitempty"`
	Structure string          `json:"structure,omitempty"`
	AtomCount *int            `json:"atomCount,omitempty"`
	DT50s     json.RawMessage `json:"dt50s,omitempty"`
	Image     string          `json:"image,omitempty"`
	ImageSize *int            `json:"imageSize,omitempty"`
	Name      string          `json:"name,omitempty"`
	Proposed  json.RawMessage `json:"proposed,omitempty"`
}

// LinkRecord is one edge of the pathway graph. Rule carries the rule name
// attached by the reaction lookup, when one was performed.
type LinkRecord struct {
	ID         string          `json:"id,omitempty"`
	IDReaction string          `json:"idreaction,omitempty"`
	Multistep  json.RawMessage `json:"multistep,omitempty"`
	Name       string          `json:"name,omitempty"`
	Pseudo     *bool           `json:"pseudo,omitempty"`
	Rule       *string         `json:"rule,omitempty"`
	Scenarios  json.RawMessage `json:"scenarios,omitempty"`
	Source     *int            `json:"source,omitempty"`
	Target     *int            `json:"target,omitempty"`
}

// IsPseudo reports whether the link is an indirection marker.
func (l LinkRecord) IsPseudo() bool {
	return l.Pseudo != nil && *l.Pseudo
}

// ReactionDocument is the subset of a reaction resource used for rule lookup.
type ReactionDocument struct {
	ID    string        `json:"id,omitempty"`
	Name  string        `json:"name,omitempty"`
	Rules []RuleSummary `json:"rules"`
}

// RuleSummary names a rule attached to a reaction.
type RuleSummary struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}
