// Package drivertest provides in-memory stand-ins for the Postgres pool and
// the Redis client, so repositories can be tested without a server.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"goflare.io/creamery/driver"
)

// Result is the scripted outcome of one statement. Tag is used by Exec, Rows
// by Query and QueryRow. A QueryRow without rows fails with pgx.ErrNoRows.
type Result struct {
	Tag  string
	Rows [][]any
	Err  error
}

// Call is a statement the pool received.
type Call struct {
	SQL  string
	Args []any
	InTx bool
}

type expectation struct {
	contains string
	result   Result
}

var _ driver.PostgresPool = (*Pool)(nil)

// Pool answers statements in the order they were scripted with Expect. A
// statement that does not contain the next expected fragment fails.
type Pool struct {
	mu       sync.Mutex
	expected []expectation
	calls    []Call

	Begun      int
	Committed  int
	RolledBack int
}

func NewPool() *Pool {
	return &Pool{}
}

// Expect scripts the next statement. contains is matched against the SQL
// with whitespace collapsed.
func (p *Pool) Expect(contains string, result Result) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expected = append(p.expected, expectation{contains: normalize(contains), result: result})
	return p
}

// Calls returns the statements received so far.
func (p *Pool) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Pending returns the fragments of scripted statements that never ran.
func (p *Pool) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending := make([]string, len(p.expected))
	for i, e := range p.expected {
		pending[i] = e.contains
	}
	return pending
}

func (p *Pool) next(sql string, args []any, inTx bool) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sql = normalize(sql)
	p.calls = append(p.calls, Call{SQL: sql, Args: args, InTx: inTx})
	if len(p.expected) == 0 {
		return Result{}, fmt.Errorf("drivertest: unexpected statement %q", sql)
	}
	e := p.expected[0]
	if !strings.Contains(sql, e.contains) {
		return Result{}, fmt.Errorf("drivertest: statement %q does not contain %q", sql, e.contains)
	}
	p.expected = p.expected[1:]
	return e.result, nil
}

func (p *Pool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	p.mu.Lock()
	p.Begun++
	p.mu.Unlock()
	return &Tx{pool: p}, nil
}

func (p *Pool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.exec(sql, args, false)
}

func (p *Pool) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.query(sql, args, false)
}

func (p *Pool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return p.queryRow(sql, args, false)
}

func (p *Pool) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	return &batchResults{err: errors.New("drivertest: batches are not supported")}
}

func (p *Pool) Close() {}

func (p *Pool) exec(sql string, args []any, inTx bool) (pgconn.CommandTag, error) {
	result, err := p.next(sql, args, inTx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag(result.Tag), result.Err
}

func (p *Pool) query(sql string, args []any, inTx bool) (pgx.Rows, error) {
	result, err := p.next(sql, args, inTx)
	if err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return &Rows{values: result.Rows, index: -1}, nil
}

func (p *Pool) queryRow(sql string, args []any, inTx bool) pgx.Row {
	result, err := p.next(sql, args, inTx)
	if err != nil {
		return row{err: err}
	}
	if result.Err != nil {
		return row{err: result.Err}
	}
	if len(result.Rows) == 0 {
		return row{err: pgx.ErrNoRows}
	}
	return row{values: result.Rows[0]}
}

// Tx runs its statements against the pool that began it. Only the methods
// the repositories call are implemented.
type Tx struct {
	pgx.Tx
	pool *Pool
}

func (tx *Tx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.pool.exec(sql, args, true)
}

func (tx *Tx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	return tx.pool.query(sql, args, true)
}

func (tx *Tx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return tx.pool.queryRow(sql, args, true)
}

func (tx *Tx) Commit(context.Context) error {
	tx.pool.mu.Lock()
	tx.pool.Committed++
	tx.pool.mu.Unlock()
	return nil
}

func (tx *Tx) Rollback(context.Context) error {
	tx.pool.mu.Lock()
	tx.pool.RolledBack++
	tx.pool.mu.Unlock()
	return nil
}

type row struct {
	values []any
	err    error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanValues(r.values, dest)
}

var _ pgx.Rows = (*Rows)(nil)

// Rows iterates over scripted values.
type Rows struct {
	values [][]any
	index  int
	closed bool
}

func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Err() error                                   { return nil }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	if r.closed || r.index+1 >= len(r.values) {
		r.closed = true
		return false
	}
	r.index++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	return scanValues(r.values[r.index], dest)
}

func (r *Rows) Values() ([]any, error) {
	return r.values[r.index], nil
}

type batchResults struct {
	err error
}

func (b *batchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, b.err }
func (b *batchResults) Query() (pgx.Rows, error)         { return nil, b.err }
func (b *batchResults) QueryRow() pgx.Row                { return row{err: b.err} }
func (b *batchResults) Close() error                     { return nil }

func scanValues(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("drivertest: %d values scanned into %d destinations", len(values), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return fmt.Errorf("drivertest: column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, value any) error {
	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	target = target.Elem()
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(target.Type()):
		target.Set(v)
	case v.Kind() == target.Kind() && v.Type().ConvertibleTo(target.Type()):
		target.Set(v.Convert(target.Type()))
	case v.Kind() == reflect.String && target.Type() == reflect.TypeOf([]byte(nil)):
		target.SetBytes([]byte(v.String()))
	default:
		return fmt.Errorf("cannot scan %T into %T", value, dest)
	}
	return nil
}

func normalize(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

// Redis is an in-memory redis.Cmdable supporting Get, Set and Del. Any other
// command panics. Expirations are recorded but never applied.
type Redis struct {
	redis.Cmdable

	mu          sync.Mutex
	values      map[string][]byte
	expirations map[string]time.Duration

	// Err, when set, fails every command.
	Err error
}

func NewRedis() *Redis {
	return &Redis{
		values:      make(map[string][]byte),
		expirations: make(map[string]time.Duration),
	}
}

func (r *Redis) Get(ctx context.Context, key string) *redis.StringCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return redis.NewStringResult("", r.Err)
	}
	value, ok := r.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(value), nil)
}

func (r *Redis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return redis.NewStatusResult("", r.Err)
	}
	switch v := value.(type) {
	case []byte:
		r.values[key] = append([]byte(nil), v...)
	case string:
		r.values[key] = []byte(v)
	default:
		r.values[key] = []byte(fmt.Sprint(v))
	}
	r.expirations[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (r *Redis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return redis.NewIntResult(0, r.Err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := r.values[key]; ok {
			delete(r.values, key)
			delete(r.expirations, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Has reports whether key holds a value.
func (r *Redis) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.values[key]
	return ok
}

// Expiration returns the ttl key was last set with.
func (r *Redis) Expiration(key string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expirations[key]
}
