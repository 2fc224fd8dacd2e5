package graph

import (
	"context"
	"errors"
	"time"

	"github.com/vanshika/cts-envipath/internal/config"
)

// Client is the contract the rule repository needs from the graph database
// that stores the biotransformation rule catalogue.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Result is a simplified representation of a query response.
type Result struct {
	Records []Record
}

// Record groups key-value pairs returned from the graph engine.
type Record map[string]any

// Options configures a graph client implementation.
type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
	AcquireTimeout time.Duration
}

// ErrMissingURI indicates the graph URI is not provided.
var ErrMissingURI = errors.New("graph URI is required")

// OptionsFromConfig maps the GRAPH_* settings onto client options.
func OptionsFromConfig(cfg config.GraphConfig) Options {
	return Options{
		URI:            cfg.URI,
		Database:       cfg.Database,
		Username:       cfg.Username,
		Password:       cfg.Password,
		MaxConnections: cfg.MaxConnections,
		AcquireTimeout: cfg.AcquireTimeout,
	}
}
