package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/formulary/internal/ir"
)

// ErrNotFound is returned when a record id is not in the index.
var ErrNotFound = ir.ErrNotFound

// ErrDuplicate is returned by Insert when the id is already in use.
var ErrDuplicate = errors.New("duplicate record id")

// insertScript adds a record to the index and writes its attributes.
// KEYS: index, seq, record. ARGV: id, then field/value pairs.
// Returns 0 if the id exists, otherwise the assigned sequence.
var insertScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return 0
end
local seq = redis.call('INCR', KEYS[2])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
if #ARGV > 1 then
	redis.call('HSET', KEYS[3], unpack(ARGV, 2))
end
return seq
`)

// updateScript merges fields into an indexed record.
// KEYS: index, record. ARGV: id, then field/value pairs.
// Returns 0 if the id is not indexed, 1 otherwise.
var updateScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return 0
end
if #ARGV > 1 then
	redis.call('HSET', KEYS[2], unpack(ARGV, 2))
end
return 1
`)

// Store provides namespaced Redis record operations.
// The store is thread-safe and can be used concurrently from multiple goroutines.
type Store struct {
	rdb       *redis.Client
	namespace string
	ids       ir.IDGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator used when Insert is given an empty id.
func WithIDGenerator(gen ir.IDGenerator) Option {
	return func(s *Store) {
		s.ids = gen
	}
}

// New creates a record store for the given namespace.
// Returns an error if namespace is empty.
func New(redisOpts *redis.Options, namespace string, opts ...Option) (*Store, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	s := &Store{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
		ids:       ir.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Insert adds a record and returns its id. An empty id is generated.
// Returns ErrDuplicate if the id already exists.
func (s *Store) Insert(ctx context.Context, rec ir.Record) (string, error) {
	id := rec.ID
	if id == "" {
		id = s.ids.Generate()
	}

	pairs, err := AttributesToArgs(rec.Attributes)
	if err != nil {
		return "", fmt.Errorf("insert record %s: %w", id, err)
	}

	keys := []string{IndexKey(s.namespace), SeqKey(s.namespace), RecordKey(s.namespace, id)}
	args := append([]any{id}, pairs...)
	seq, err := insertScript.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return "", fmt.Errorf("insert record %s: %w", id, err)
	}
	if seq == 0 {
		return "", fmt.Errorf("insert record %s: %w", id, ErrDuplicate)
	}
	return id, nil
}

// UpdateFields merges fields into the stored attributes of record id.
// Fields not named are left unchanged; explicit nulls are stored.
func (s *Store) UpdateFields(ctx context.Context, id string, fields ir.Attributes) error {
	pairs, err := AttributesToArgs(fields)
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}

	keys := []string{IndexKey(s.namespace), RecordKey(s.namespace, id)}
	args := append([]any{id}, pairs...)
	ok, err := updateScript.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	if ok == 0 {
		return fmt.Errorf("update record %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (ir.Record, error) {
	var (
		scoreCmd *redis.FloatCmd
		hashCmd  *redis.MapStringStringCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		scoreCmd = pipe.ZScore(ctx, IndexKey(s.namespace), id)
		hashCmd = pipe.HGetAll(ctx, RecordKey(s.namespace, id))
		return nil
	})
	if errors.Is(err, redis.Nil) || errors.Is(scoreCmd.Err(), redis.Nil) {
		return ir.Record{}, fmt.Errorf("get record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}

	attrs, err := HashToAttributes(hashCmd.Val())
	if err != nil {
		return ir.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	return ir.Record{ID: id, Attributes: attrs}, nil
}

// ListAll returns every record in insertion order. Never returns nil.
func (s *Store) ListAll(ctx context.Context) ([]ir.Record, error) {
	ids, err := s.rdb.ZRange(ctx, IndexKey(s.namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if len(ids) == 0 {
		return []ir.Record{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, RecordKey(s.namespace, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records := make([]ir.Record, 0, len(ids))
	for i, id := range ids {
		attrs, err := HashToAttributes(cmds[i].Val())
		if err != nil {
			return nil, fmt.Errorf("list records: record %s: %w", id, err)
		}
		records = append(records, ir.Record{ID: id, Attributes: attrs})
	}
	return records, nil
}

// Delete removes a record and its attributes.
func (s *Store) Delete(ctx context.Context, id string) error {
	var removed *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, IndexKey(s.namespace), id)
		pipe.Del(ctx, RecordKey(s.namespace, id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("delete record %s: %w", id, ErrNotFound)
	}
	return nil
}
