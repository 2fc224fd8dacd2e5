package generator

// Config drives the synthetic pathway generator.
type Config struct {
	NumPathways  int
	MaxDepth     int
	MaxBranching int

	// IndirectionChance is the probability that a node's products are
	// grouped behind a pseudo link.
	IndirectionChance float64

	// ConvergenceChance is the probability that a product is also reached
	// from a second parent.
	ConvergenceChance float64

	// RuleCount sizes the rule catalogue. MissingRuleChance leaves codes out
	// of it so that rule misses are exercised.
	RuleCount         int
	MissingRuleChance float64

	Seed int64
}

// DefaultConfig returns settings that produce small, varied pathways.
func DefaultConfig() Config {
	return Config{
		NumPathways:       100,
		MaxDepth:          3,
		MaxBranching:      3,
		IndirectionChance: 0.3,
		ConvergenceChance: 0.15,
		RuleCount:         60,
		MissingRuleChance: 0.1,
		Seed:              42,
	}
}
