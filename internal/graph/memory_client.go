package graph

import (
	"context"
	"sync"
)

// MemoryClient is an in-memory Client for exercising repository logic without
// a running database. Results are served in the order they were pushed.
type MemoryClient struct {
	mu           sync.Mutex
	writes       callLog
	reads        callLog
	err          error
	connectivity error
}

// ExecutedQuery captures a cypher statement and parameters executed against the graph.
type ExecutedQuery struct {
	Query  string
	Params map[string]any
}

type callLog struct {
	calls   []ExecutedQuery
	pending []Result
}

func (l *callLog) record(cypher string, params map[string]any) Result {
	l.calls = append(l.calls, ExecutedQuery{Query: cypher, Params: cloneMap(params)})
	if len(l.pending) == 0 {
		return Result{}
	}
	res := l.pending[0]
	l.pending = l.pending[1:]
	return res
}

// NewMemoryClient instantiates an empty in-memory client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

// WithError makes every subsequent query fail with err.
func (m *MemoryClient) WithError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithConnectivityError forces VerifyConnectivity to return the supplied error.
func (m *MemoryClient) WithConnectivityError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = err
	return m
}

// PushReadResult queues a result for a future ExecuteRead call.
func (m *MemoryClient) PushReadResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads.pending = append(m.reads.pending, res)
}

// PushWriteResult queues a result for a future ExecuteWrite call.
func (m *MemoryClient) PushWriteResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes.pending = append(m.writes.pending, res)
}

func (m *MemoryClient) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (Result, error) {
	return m.execute(&m.writes, cypher, params)
}

func (m *MemoryClient) ExecuteRead(_ context.Context, cypher string, params map[string]any) (Result, error) {
	return m.execute(&m.reads, cypher, params)
}

func (m *MemoryClient) execute(log *callLog, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	return log.record(cypher, params), nil
}

func (m *MemoryClient) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectivity
}

func (m *MemoryClient) Close(context.Context) error {
	return nil
}

// WriteCalls returns a snapshot of executed write queries.
func (m *MemoryClient) WriteCalls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.writes.calls...)
}

// ReadCalls returns a snapshot of executed read queries.
func (m *MemoryClient) ReadCalls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.reads.calls...)
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
