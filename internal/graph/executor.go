// Package graph executes structured queries against the organization graph.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	rg "github.com/falkordb/falkordb-go"
	"github.com/gomodule/redigo/redis"
	"go.uber.org/zap"

	"orgfinder/internal/model"
)

// ErrQueryFailed wraps every backend error. Callers only distinguish
// success from failure.
var ErrQueryFailed = errors.New("graph query failed")

// Executor runs a structured query and returns flat records
type Executor interface {
	Execute(ctx context.Context, query string, params map[string]interface{}) ([]model.Record, error)
}

// SchemaProvider describes the graph for prompt construction
type SchemaProvider interface {
	Schema(ctx context.Context) (string, error)
}

// FalkorExecutor runs Cypher on FalkorDB. Each query borrows a connection
// from the pool for its whole duration.
type FalkorExecutor struct {
	pool    *redis.Pool
	name    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewFalkorExecutor creates a connection pool for the named graph. The
// connection is dialed lazily; use Ping to check it.
func NewFalkorExecutor(addr, password, graphName string, timeout time.Duration, logger *zap.Logger) (*FalkorExecutor, error) {
	if addr == "" {
		return nil, fmt.Errorf("falkordb address is required")
	}
	if graphName == "" {
		return nil, fmt.Errorf("falkordb graph name is required")
	}

	opts := []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialWriteTimeout(3 * time.Second),
	}
	if timeout > 0 {
		opts = append(opts, redis.DialReadTimeout(timeout))
	}
	if password != "" {
		opts = append(opts, redis.DialPassword(password))
	}

	pool := &redis.Pool{
		MaxIdle:     5,
		MaxActive:   10,
		IdleTimeout: 5 * time.Minute,
		Wait:        true,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr, opts...)
		},
	}
	return NewWithPool(pool, graphName, timeout, logger), nil
}

// NewWithPool creates an executor over an existing connection pool
func NewWithPool(pool *redis.Pool, graphName string, timeout time.Duration, logger *zap.Logger) *FalkorExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FalkorExecutor{
		pool:    pool,
		name:    graphName,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "graph")),
	}
}

// Ping checks the connection
func (e *FalkorExecutor) Ping(ctx context.Context) error {
	conn, err := e.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get falkordb connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return fmt.Errorf("falkordb ping failed: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (e *FalkorExecutor) Close() error {
	return e.pool.Close()
}

type queryResult struct {
	records []model.Record
	err     error
}

// Execute runs query with params. It gives up when ctx is done or the
// configured timeout elapses.
func (e *FalkorExecutor) Execute(ctx context.Context, query string, params map[string]interface{}) ([]model.Record, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	values, err := queryParams(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	conn, err := e.pool.GetContext(ctx)
	if err != nil {
		e.logger.Error("Failed to get graph connection", zap.String("graph", e.name), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	done := make(chan queryResult, 1)
	go func() {
		defer conn.Close()
		done <- e.run(conn, query, values)
	}()

	select {
	case <-ctx.Done():
		e.logger.Warn("Graph query abandoned", zap.String("graph", e.name), zap.Error(ctx.Err()))
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, ctx.Err())
	case r := <-done:
		if r.err != nil {
			e.logger.Error("Graph query failed", zap.String("graph", e.name), zap.Error(r.err))
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, r.err)
		}
		return r.records, nil
	}
}

// run executes one query on conn. The client library panics on replies it
// cannot decode, so panics are turned into errors here.
func (e *FalkorExecutor) run(conn redis.Conn, query string, params map[string]interface{}) (out queryResult) {
	defer func() {
		if r := recover(); r != nil {
			out = queryResult{err: fmt.Errorf("failed to decode graph reply: %v", r)}
		}
	}()

	g := rg.GraphNew(e.name, conn)
	res, err := g.ParameterizedQuery(query, params)
	if err != nil {
		return queryResult{err: err}
	}

	records := []model.Record{}
	for res.Next() {
		rec := res.Record()
		records = append(records, toRecord(rec.Keys(), rec.Values()))
	}
	return queryResult{records: records}
}

// queryParams converts params to the value types the query header encoder
// accepts: string, int, float64, bool, nil and lists of those.
func queryParams(params map[string]interface{}) (map[string]interface{}, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		cv, err := paramValue(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = cv
	}
	return out, nil
}

func paramValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil, string, int, float64, bool:
		return t, nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case float32:
		return float64(t), nil
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			cv, err := paramValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// Schema lists labels, relationship types and property keys
func (e *FalkorExecutor) Schema(ctx context.Context) (string, error) {
	return DescribeSchema(ctx, e)
}

// DescribeSchema renders the schema of any executor for an LLM prompt
func DescribeSchema(ctx context.Context, exec Executor) (string, error) {
	sections := []struct {
		title string
		query string
	}{
		{"Node labels", "CALL db.labels()"},
		{"Relationship types", "CALL db.relationshipTypes()"},
		{"Property keys", "CALL db.propertyKeys()"},
	}

	var b strings.Builder
	for _, s := range sections {
		records, err := exec.Execute(ctx, s.query, nil)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(s.title), err)
		}
		var names []string
		for _, rec := range records {
			for _, v := range rec {
				if name, ok := v.(string); ok && name != "" {
					names = append(names, name)
				}
			}
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "%s: %s\n", s.title, strings.Join(names, ", "))
	}
	return b.String(), nil
}

func toRecord(keys []string, values []interface{}) model.Record {
	rec := make(model.Record, len(keys))
	for i, k := range keys {
		if i < len(values) {
			rec[k] = normalize(values[i])
		}
	}
	return rec
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, normalize(item))
		}
		return out
	case int:
		return int64(t)
	default:
		return v
	}
}

var (
	_ Executor       = (*FalkorExecutor)(nil)
	_ SchemaProvider = (*FalkorExecutor)(nil)
)
