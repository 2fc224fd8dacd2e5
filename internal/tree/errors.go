package tree

import "errors"

var (
	// ErrMalformedGraph indicates the pathway graph violates the tree-building
	// preconditions: no root, several roots, or a dangling link endpoint.
	ErrMalformedGraph = errors.New("malformed pathway graph")

	// ErrCycleDetected indicates a node is reachable from itself, so the
	// pathway cannot be unfolded into a finite tree.
	ErrCycleDetected = errors.New("cycle detected in pathway graph")

	// ErrUpstreamFailed indicates the prediction job finished with an error.
	ErrUpstreamFailed = errors.New("pathway prediction failed upstream")

	// ErrIncomplete indicates the prediction job has not finished yet.
	ErrIncomplete = errors.New("pathway prediction not completed")
)
