package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/envipath"
	"github.com/vanshika/cts-envipath/internal/logging"
	"github.com/vanshika/cts-envipath/internal/metrics"
	"github.com/vanshika/cts-envipath/internal/rules"
	"github.com/vanshika/cts-envipath/internal/tree"
)

type stubClient struct {
	mu         sync.Mutex
	loginErr   error
	predictErr error
	waitErr    error
	document   domain.PathwayDocument
	reactions  map[string][]string
	lookupErr  map[string]error
	predicted  []envipath.PredictRequest
	lookups    []string
}

func (s *stubClient) Login(ctx context.Context) error {
	return s.loginErr
}

func (s *stubClient) Predict(ctx context.Context, req envipath.PredictRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predicted = append(s.predicted, req)
	if s.predictErr != nil {
		return "", s.predictErr
	}
	return "http://envipath.test/pathway/1", nil
}

func (s *stubClient) WaitForPathway(ctx context.Context, pathwayURL string) (domain.PathwayDocument, error) {
	if s.waitErr != nil {
		return domain.PathwayDocument{}, s.waitErr
	}
	return s.document, nil
}

func (s *stubClient) ReactionRules(ctx context.Context, reactionURL string) ([]string, error) {
	s.mu.Lock()
	s.lookups = append(s.lookups, reactionURL)
	s.mu.Unlock()
	if err := s.lookupErr[reactionURL]; err != nil {
		return nil, err
	}
	return s.reactions[reactionURL], nil
}

func intp(v int) *int       { return &v }
func boolp(v bool) *bool    { return &v }
func strp(v string) *string { return &v }

// sampleDocument: 0 -> grouping 10 -> {1, 2}, both products of reaction r1.
func sampleDocument() domain.PathwayDocument {
	return domain.PathwayDocument{
		ID:        "pw-1",
		Completed: domain.CompletedTrue,
		Nodes: []domain.NodeRecord{
			{Depth: intp(0), Smiles: "CCO"},
			{Depth: intp(1), Smiles: "CC=O"},
			{Depth: intp(1), Smiles: "O"},
		},
		Links: []domain.LinkRecord{
			{Source: intp(0), Target: intp(10), Pseudo: boolp(true), IDReaction: "r-pseudo"},
			{Source: intp(10), Target: intp(1), Pseudo: boolp(false), IDReaction: "r1"},
			{Source: intp(10), Target: intp(2), Pseudo: boolp(false), IDReaction: "r1"},
		},
	}
}

func newTestService(client PathwayClient, table tree.RuleTable, m *metrics.Collector) *PathwayService {
	return NewPathwayService(client, table, Options{
		LookupWorkers: 2,
		NodeLimit:     16,
		Metrics:       m,
		Logger:        logging.Discard(),
	})
}

func TestAttachRuleNames_FirstCandidateWins(t *testing.T) {
	client := &stubClient{reactions: map[string][]string{"r1": {"Hydroxylation bt0063", "bt0001"}}}
	m := metrics.New("test")
	svc := newTestService(client, nil, m)

	doc := sampleDocument()
	require.NoError(t, svc.AttachRuleNames(context.Background(), &doc))

	assert.Nil(t, doc.Links[0].Rule)
	for _, l := range doc.Links[1:] {
		require.NotNil(t, l.Rule)
		assert.Equal(t, "Hydroxylation bt0063", *l.Rule)
	}
	assert.Equal(t, []string{"r1", "r1"}, client.lookups)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RuleLookups.WithLabelValues("hit")))
}

func TestAttachRuleNames_KeepsExistingAndToleratesFailures(t *testing.T) {
	client := &stubClient{
		reactions: map[string][]string{"r3": {}},
		lookupErr: map[string]error{"r2": errors.New("boom")},
	}
	m := metrics.New("test")
	svc := newTestService(client, nil, m)

	doc := domain.PathwayDocument{Links: []domain.LinkRecord{
		{Source: intp(0), Target: intp(1), IDReaction: "r1", Rule: strp("bt0002")},
		{Source: intp(0), Target: intp(2), IDReaction: "r2"},
		{Source: intp(0), Target: intp(3), IDReaction: "r3"},
		{Source: intp(0), Target: intp(4)},
	}}
	require.NoError(t, svc.AttachRuleNames(context.Background(), &doc))

	assert.Equal(t, "bt0002", *doc.Links[0].Rule)
	assert.Nil(t, doc.Links[1].Rule)
	assert.Nil(t, doc.Links[2].Rule)
	assert.ElementsMatch(t, []string{"r2", "r3"}, client.lookups)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RuleLookups.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RuleLookups.WithLabelValues("empty")))
}

func TestAttachRuleNames_Cancelled(t *testing.T) {
	client := &stubClient{lookupErr: map[string]error{"r1": context.Canceled}}
	svc := newTestService(client, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := sampleDocument()
	err := svc.AttachRuleNames(ctx, &doc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredict_AssemblesEnrichedTree(t *testing.T) {
	client := &stubClient{
		document:  sampleDocument(),
		reactions: map[string][]string{"r1": {"Hydroxylation bt0063"}},
	}
	table, err := rules.NewTable([]domain.Rule{{Code: "bt0063", Likelihood: 0.5, Description: "oxidation"}})
	require.NoError(t, err)
	m := metrics.New("test")
	svc := newTestService(client, table, m)

	root, err := svc.Predict(context.Background(), "CCO", 2)
	require.NoError(t, err)

	require.Len(t, client.predicted, 1)
	assert.Equal(t, "CCO", client.predicted[0].Smiles)
	assert.Equal(t, "cts-d2-n16", client.predicted[0].Setting)

	require.Len(t, root.Metabolites, 2)
	for _, child := range root.Metabolites {
		assert.Equal(t, "bt0063", child.Rule)
		assert.Equal(t, tree.RuleURLBase+"bt0063", child.RuleURL)
		require.NotNil(t, child.Likelihood)
		assert.Equal(t, 0.5, *child.Likelihood)
		assert.Equal(t, "oxidation", child.LinkDescription)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TreesBuilt.WithLabelValues(metrics.OutcomeOK)))
}

func TestPredict_Errors(t *testing.T) {
	t.Run("offline", func(t *testing.T) {
		_, err := newTestService(nil, nil, nil).Predict(context.Background(), "CCO", 1)
		assert.ErrorIs(t, err, ErrNoPredictor)
	})
	t.Run("gen limit", func(t *testing.T) {
		_, err := newTestService(&stubClient{}, nil, nil).Predict(context.Background(), "CCO", 4)
		assert.ErrorIs(t, err, ErrInvalidGenLimit)
	})
	t.Run("poll timeout", func(t *testing.T) {
		client := &stubClient{waitErr: envipath.ErrPollTimeout}
		_, err := newTestService(client, nil, nil).Predict(context.Background(), "CCO", 1)
		assert.ErrorIs(t, err, envipath.ErrPollTimeout)
	})
	t.Run("upstream failure", func(t *testing.T) {
		client := &stubClient{document: domain.PathwayDocument{Completed: domain.CompletedError}}
		m := metrics.New("test")
		_, err := newTestService(client, nil, m).Predict(context.Background(), "CCO", 1)
		assert.ErrorIs(t, err, tree.ErrUpstreamFailed)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.TreesBuilt.WithLabelValues(metrics.OutcomeUpstream)))
	})
}

func TestPredict_FetchFailureOutcomes(t *testing.T) {
	cases := map[string]struct {
		client  *stubClient
		outcome string
	}{
		"poll timeout": {
			client:  &stubClient{waitErr: fmt.Errorf("%w after 1s", envipath.ErrPollTimeout)},
			outcome: metrics.OutcomeUpstream,
		},
		"error status": {
			client:  &stubClient{predictErr: &envipath.StatusError{Method: "POST", URL: "x", StatusCode: 500}},
			outcome: metrics.OutcomeUpstream,
		},
		"unknown setting": {
			client:  &stubClient{predictErr: fmt.Errorf("%w: cts-d1-n64", envipath.ErrUnknownSetting)},
			outcome: metrics.OutcomeError,
		},
		"login failure": {
			client:  &stubClient{loginErr: errors.New("bad credentials")},
			outcome: metrics.OutcomeError,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m := metrics.New("test")
			_, err := newTestService(tc.client, nil, m).Predict(context.Background(), "CCO", 1)
			require.Error(t, err)

			for _, outcome := range []string{metrics.OutcomeUpstream, metrics.OutcomeError} {
				want := 0.0
				if outcome == tc.outcome {
					want = 1
				}
				assert.Equal(t, want, testutil.ToFloat64(m.TreesBuilt.WithLabelValues(outcome)), outcome)
			}
		})
	}
}

func TestPredict_CancelledIsNotCounted(t *testing.T) {
	m := metrics.New("test")
	client := &stubClient{waitErr: fmt.Errorf("fetch pathway: %w", context.Canceled)}
	_, err := newTestService(client, nil, m).Predict(context.Background(), "CCO", 1)
	require.ErrorIs(t, err, context.Canceled)

	for _, outcome := range []string{metrics.OutcomeUpstream, metrics.OutcomeError} {
		assert.Zero(t, testutil.ToFloat64(m.TreesBuilt.WithLabelValues(outcome)), outcome)
	}
}

func TestBuildDocument_RecordsOutcome(t *testing.T) {
	m := metrics.New("test")
	svc := newTestService(nil, nil, m)

	doc := sampleDocument()
	doc.Links = append(doc.Links, domain.LinkRecord{Source: intp(1), Target: intp(0), Pseudo: boolp(false)})
	_, err := svc.BuildDocument(context.Background(), doc)
	assert.ErrorIs(t, err, tree.ErrCycleDetected)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TreesBuilt.WithLabelValues(metrics.OutcomeCycle)))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeOK, Outcome(nil))
	assert.Equal(t, metrics.OutcomeMalformed, Outcome(tree.ErrMalformedGraph))
	assert.Equal(t, metrics.OutcomeCycle, Outcome(tree.ErrCycleDetected))
	assert.Equal(t, metrics.OutcomeUpstream, Outcome(tree.ErrIncomplete))
	assert.Equal(t, metrics.OutcomeUpstream, Outcome(fmt.Errorf("submit prediction: %w", envipath.ErrNoLocation)))
	assert.Equal(t, metrics.OutcomeError, Outcome(envipath.ErrUnknownSetting))
	assert.Equal(t, metrics.OutcomeError, Outcome(errors.New("other")))
}
