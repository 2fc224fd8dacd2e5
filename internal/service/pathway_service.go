package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/envipath"
	"github.com/vanshika/cts-envipath/internal/metrics"
	"github.com/vanshika/cts-envipath/internal/tree"
)

const (
	// MinGenLimit and MaxGenLimit bound the number of predicted generations.
	MinGenLimit = 1
	MaxGenLimit = 3

	tracerName = "github.com/vanshika/cts-envipath/internal/service"
)

var (
	// ErrInvalidGenLimit is returned for a generation limit outside 1..3.
	ErrInvalidGenLimit = errors.New("generation limit must be between 1 and 3")

	// ErrNoPredictor is returned by Predict when the service runs offline.
	ErrNoPredictor = errors.New("no prediction client configured")
)

// PathwayClient is the prediction service contract used by PathwayService.
type PathwayClient interface {
	Login(ctx context.Context) error
	Predict(ctx context.Context, req envipath.PredictRequest) (string, error)
	WaitForPathway(ctx context.Context, pathwayURL string) (domain.PathwayDocument, error)
	ReactionRules(ctx context.Context, reactionURL string) ([]string, error)
}

var _ PathwayClient = (*envipath.Client)(nil)

// Options tunes a PathwayService.
type Options struct {
	// LookupWorkers bounds concurrent reaction rule lookups.
	LookupWorkers int

	// NodeLimit selects the prediction setting together with the generation limit.
	NodeLimit int

	Metrics *metrics.Collector
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// PathwayService runs predictions and turns pathway documents into
// metabolite trees.
type PathwayService struct {
	client    PathwayClient
	rules     tree.RuleTable
	workers   int
	nodeLimit int
	metrics   *metrics.Collector
	logger    *slog.Logger
	tracer    trace.Tracer
	nowFn     func() time.Time
}

// NewPathwayService wires a service. client may be nil for offline use and
// rules may be nil when no rule table is loaded.
func NewPathwayService(client PathwayClient, rules tree.RuleTable, opts Options) *PathwayService {
	if opts.LookupWorkers <= 0 {
		opts.LookupWorkers = 8
	}
	if opts.NodeLimit <= 0 {
		opts.NodeLimit = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	return &PathwayService{
		client:    client,
		rules:     rules,
		workers:   opts.LookupWorkers,
		nodeLimit: opts.NodeLimit,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "pathway_service"),
		tracer:    opts.Tracer,
		nowFn:     time.Now,
	}
}

// Predict submits smiles for prediction, waits for the pathway, attaches
// rule names and returns the assembled tree.
func (s *PathwayService) Predict(ctx context.Context, smiles string, genLimit int) (*tree.Node, error) {
	if s.client == nil {
		return nil, ErrNoPredictor
	}
	if genLimit < MinGenLimit || genLimit > MaxGenLimit {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidGenLimit, genLimit)
	}

	runID := uuid.NewString()
	setting := envipath.SettingName(genLimit, s.nodeLimit)
	ctx, span := s.tracer.Start(ctx, "pathway.predict", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("envipath.setting", setting),
		attribute.Int("gen_limit", genLimit),
	))
	defer span.End()

	logger := s.logger.With("run_id", runID)
	doc, err := s.fetchPathway(ctx, logger, smiles, setting, runID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		if !errors.Is(err, context.Canceled) {
			s.metrics.ObserveBuild(Outcome(err), 0, 0, 0)
		}
		return nil, err
	}

	if err := s.AttachRuleNames(ctx, &doc); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	root, err := s.BuildDocument(ctx, doc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	logger.Info("prediction assembled", "nodes", root.Count())
	return root, nil
}

func (s *PathwayService) fetchPathway(ctx context.Context, logger *slog.Logger, smiles, setting, runID string) (domain.PathwayDocument, error) {
	if err := s.client.Login(ctx); err != nil {
		return domain.PathwayDocument{}, err
	}
	pathwayURL, err := s.client.Predict(ctx, envipath.PredictRequest{
		Smiles:      smiles,
		Setting:     setting,
		Name:        "cts-" + runID,
		Description: "CTS transformation pathway for " + smiles,
	})
	if err != nil {
		return domain.PathwayDocument{}, err
	}
	logger.Info("prediction submitted", "pathway", pathwayURL, "setting", setting)

	started := s.nowFn()
	doc, err := s.client.WaitForPathway(ctx, pathwayURL)
	if err != nil {
		return domain.PathwayDocument{}, err
	}
	logger.Info("prediction finished", "pathway", pathwayURL, "completed", doc.Completed, "waited", s.nowFn().Sub(started))
	return doc, nil
}

// AttachRuleNames fills the rule name of every non-pseudo link that has a
// reaction and no rule yet, taking the first rule the reaction lists.
// Failed lookups leave the link without a rule; only cancellation of ctx
// fails the call.
func (s *PathwayService) AttachRuleNames(ctx context.Context, doc *domain.PathwayDocument) error {
	if s.client == nil {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "pathway.rule_lookup")
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range doc.Links {
		link := &doc.Links[i]
		if link.IsPseudo() || link.IDReaction == "" || link.Rule != nil {
			continue
		}
		g.Go(func() error {
			names, err := s.client.ReactionRules(gctx, link.IDReaction)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.metrics.ObserveRuleLookup("error")
				s.logger.Warn("reaction rule lookup failed", "reaction", link.IDReaction, "error", err)
				return nil
			}
			if len(names) == 0 {
				s.metrics.ObserveRuleLookup("empty")
				return nil
			}
			s.metrics.ObserveRuleLookup("hit")
			name := names[0]
			link.Rule = &name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("attach rule names: %w", err)
	}
	return nil
}

// BuildDocument assembles the tree of a finished pathway document using the
// service's rule table.
func (s *PathwayService) BuildDocument(ctx context.Context, doc domain.PathwayDocument) (*tree.Node, error) {
	_, span := s.tracer.Start(ctx, "pathway.build", trace.WithAttributes(
		attribute.Int("pathway.nodes", len(doc.Nodes)),
		attribute.Int("pathway.links", len(doc.Links)),
	))
	defer span.End()

	started := s.nowFn()
	root, misses, err := s.build(doc)
	elapsed := s.nowFn().Sub(started)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveBuild(Outcome(err), elapsed, 0, misses)
		return nil, err
	}

	nodes := root.Count()
	span.SetAttributes(attribute.Int("tree.nodes", nodes), attribute.Int("tree.rule_misses", misses))
	s.metrics.ObserveBuild(metrics.OutcomeOK, elapsed, nodes, misses)
	if misses > 0 {
		s.logger.Debug("rule codes missing from table", "pathway", doc.ID, "misses", misses)
	}
	return root, nil
}

func (s *PathwayService) build(doc domain.PathwayDocument) (*tree.Node, int, error) {
	t, err := tree.FromDocument(doc, s.rules)
	if err != nil {
		return nil, 0, err
	}
	root, err := t.Build()
	if err != nil {
		return nil, t.RuleMisses(), err
	}
	return root, t.RuleMisses(), nil
}

// Outcome classifies a build or prediction error as a metrics outcome.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, tree.ErrMalformedGraph):
		return metrics.OutcomeMalformed
	case errors.Is(err, tree.ErrCycleDetected):
		return metrics.OutcomeCycle
	case errors.Is(err, tree.ErrUpstreamFailed), errors.Is(err, tree.ErrIncomplete),
		envipath.IsUpstreamError(err):
		return metrics.OutcomeUpstream
	default:
		return metrics.OutcomeError
	}
}
