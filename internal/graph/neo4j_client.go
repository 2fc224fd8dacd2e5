package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// NewNeo4jClient connects to the rule catalogue over Bolt. Queries run in
// managed transactions so the driver retries transient failures.
func NewNeo4jClient(ctx context.Context, opts Options) (Client, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *neo4j.Config) {
		if opts.MaxConnections > 0 {
			c.MaxConnectionPoolSize = opts.MaxConnections
		}
		if opts.AcquireTimeout > 0 {
			c.ConnectionAcquisitionTimeout = opts.AcquireTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}

	return &neo4jClient{
		driver:   driver,
		database: opts.Database,
	}, nil
}

type neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

func (c *neo4jClient) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, runAndCollect(ctx, cypher, params))
	if err != nil {
		return Result{}, err
	}
	return out.(Result), nil
}

func (c *neo4jClient) ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, runAndCollect(ctx, cypher, params))
	if err != nil {
		return Result{}, err
	}
	return out.(Result), nil
}

func (c *neo4jClient) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *neo4jClient) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   mode,
	})
}

func runAndCollect(ctx context.Context, cypher string, params map[string]any) neo4j.ManagedTransactionWork {
	return func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var records []Record
		for res.Next(ctx) {
			rec := res.Record()
			record := make(Record, len(rec.Keys))
			for _, key := range rec.Keys {
				value, _ := rec.Get(key)
				record[key] = value
			}
			records = append(records, record)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return Result{Records: records}, nil
	}
}
