package domain

// Rule is the descriptive metadata of a biotransformation rule, keyed by its
// short code (e.g. "bt0001").
type Rule struct {
	Code        string  `json:"code" yaml:"code"`
	Likelihood  float64 `json:"likelihood" yaml:"likelihood"`
	Description string  `json:"description" yaml:"description"`
}
