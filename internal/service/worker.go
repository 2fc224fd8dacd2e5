package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/tree"
)

// TaskError accumulates multiple errors produced during a batch build.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := "multiple errors:"
	for _, err := range e.Errors {
		msg += " " + err.Error() + ";"
	}
	return msg
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *TaskError) Unwrap() []error {
	return e.Errors
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// BatchJob is one pathway document to assemble, labelled for reporting.
type BatchJob struct {
	Name     string
	Document domain.PathwayDocument
}

// BatchResult is the tree assembled for a job. Root is nil when the job failed.
type BatchResult struct {
	Name string
	Root *tree.Node
}

// BatchBuilder assembles many pathway documents using a worker pool.
type BatchBuilder struct {
	service *PathwayService
	workers int
}

// NewBatchBuilder creates a new BatchBuilder with the provided concurrency.
func NewBatchBuilder(service *PathwayService, workers int) *BatchBuilder {
	if workers <= 0 {
		workers = 4
	}
	return &BatchBuilder{
		service: service,
		workers: workers,
	}
}

// BuildAll assembles every job. Results keep the order of jobs; failed jobs
// have a nil Root and their errors are returned together as a *TaskError.
func (bb *BatchBuilder) BuildAll(ctx context.Context, jobs []BatchJob) ([]BatchResult, error) {
	results := make([]BatchResult, len(jobs))
	for i, job := range jobs {
		results[i].Name = job.Name
	}
	err := bb.run(ctx, len(jobs), func(idx int) error {
		root, err := bb.service.BuildDocument(ctx, jobs[idx].Document)
		if err != nil {
			return fmt.Errorf("%s: %w", jobs[idx].Name, err)
		}
		results[idx].Root = root
		return nil
	})
	return results, err
}

func (bb *BatchBuilder) run(ctx context.Context, total int, workerFn func(idx int) error) error {
	if total == 0 {
		return nil
	}
	indexCh := make(chan int)
	errCh := make(chan error, total)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			if err := workerFn(idx); err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}

	for i := 0; i < bb.workers; i++ {
		wg.Add(1)
		go worker()
	}

Loop:
	for i := 0; i < total; i++ {
		select {
		case indexCh <- i:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
	close(errCh)

	if err := ctx.Err(); err != nil {
		return err
	}
	var taskErr TaskError
	for err := range errCh {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		taskErr.append(err)
	}
	return taskErr.asError()
}
