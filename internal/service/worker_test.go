package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/tree"
)

func TestBatchBuilderAggregatesErrors(t *testing.T) {
	svc := newTestService(nil, nil, nil)
	builder := NewBatchBuilder(svc, 2)

	broken := sampleDocument()
	broken.Nodes = broken.Nodes[1:]

	results, err := builder.BuildAll(context.Background(), []BatchJob{
		{Name: "good", Document: sampleDocument()},
		{Name: "broken", Document: broken},
		{Name: "failed", Document: domain.PathwayDocument{Completed: domain.CompletedError}},
	})

	if err == nil {
		t.Fatalf("expected aggregated error, got nil")
	}
	taskErr, ok := err.(*TaskError)
	if !ok {
		t.Fatalf("expected TaskError type, got %T", err)
	}
	if len(taskErr.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(taskErr.Errors), err)
	}
	if !errors.Is(err, tree.ErrMalformedGraph) || !errors.Is(err, tree.ErrUpstreamFailed) {
		t.Fatalf("expected both failure kinds to be reachable, got %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Name != "good" || results[0].Root == nil {
		t.Fatalf("expected first job to build, got %+v", results[0])
	}
	if got := results[0].Root.Count(); got != 3 {
		t.Fatalf("expected 3 nodes in first tree, got %d", got)
	}
	if results[1].Root != nil || results[2].Root != nil {
		t.Fatalf("expected failed jobs to have no tree")
	}
}

func TestBatchBuilderCancelled(t *testing.T) {
	builder := NewBatchBuilder(newTestService(nil, nil, nil), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := builder.BuildAll(ctx, []BatchJob{{Name: "a", Document: sampleDocument()}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBatchBuilderEmpty(t *testing.T) {
	results, err := NewBatchBuilder(newTestService(nil, nil, nil), 0).BuildAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}
