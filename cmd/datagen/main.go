package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/vanshika/cts-envipath/internal/generator"
)

func main() {
	cfg := generator.DefaultConfig()
	var (
		pathways    = pflag.IntP("pathways", "n", cfg.NumPathways, "number of pathway documents to generate")
		depth       = pflag.IntP("depth", "d", cfg.MaxDepth, "maximum number of generations below the root")
		branching   = pflag.IntP("branching", "b", cfg.MaxBranching, "maximum products per metabolite")
		indirection = pflag.Float64("indirection-chance", cfg.IndirectionChance, "probability of grouping products behind a pseudo link")
		convergence = pflag.Float64("convergence-chance", cfg.ConvergenceChance, "probability of a product having a second parent")
		ruleCount   = pflag.Int("rules", cfg.RuleCount, "size of the rule code space")
		missing     = pflag.Float64("missing-rule-chance", cfg.MissingRuleChance, "probability of leaving a rule out of the catalogue")
		seed        = pflag.Int64("seed", cfg.Seed, "random seed for deterministic generation")
		outputDir   = pflag.StringP("output-dir", "o", "data", "directory to write pathways/ and rules.yaml")
		writeStdout = pflag.Bool("stdout", false, "write the combined dataset to stdout instead of files")
	)
	pflag.Parse()

	genCfg := generator.Config{
		NumPathways:       *pathways,
		MaxDepth:          *depth,
		MaxBranching:      *branching,
		IndirectionChance: clampProbability(*indirection),
		ConvergenceChance: clampProbability(*convergence),
		RuleCount:         *ruleCount,
		MissingRuleChance: clampProbability(*missing),
		Seed:              *seed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gen := generator.New(genCfg)
	dataset, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		os.Exit(1)
	}

	if *writeStdout {
		if err := json.NewEncoder(os.Stdout).Encode(dataset); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write dataset to stdout: %v\n", err)
			os.Exit(1)
		}
		return
	}

	paths, err := generator.WriteDataset(dataset, *outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write dataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "Generated %d pathways and %d rules into %s\n", len(paths), len(dataset.Rules), *outputDir)
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
