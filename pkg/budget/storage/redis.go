package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
)

// RedisBackend implements Backend on Redis for deployments where several
// gateway instances share budget state.
//
// Each budget is a hash under <prefix>budget:<id>. Two sets index the IDs:
// <prefix>budgets (all) and <prefix>owner:<owner_id>. Spend is held in the
// integer hash field spend_micros and changed with HINCRBY inside a script
// that also checks existence, so increments are atomic and never resurrect a
// deleted budget.
type RedisBackend struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisBackendConfig configures the Redis backend.
type RedisBackendConfig struct {
	Address   string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

var (
	incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return false end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return redis.call('HINCRBY', KEYS[1], 'spend_micros', ARGV[1])
`)

	resetScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'reset_at')
if not current then return -1 end
if current ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'spend_micros', 0, 'reset_at', ARGV[2], 'updated_at', ARGV[3], 'last_notified_bucket', '')
return 1
`)

	// updateScript writes the field/value pairs in ARGV[3:] when reset_at
	// and is_active still equal ARGV[1] and ARGV[2].
	updateScript = redis.NewScript(`
local state = redis.call('HMGET', KEYS[1], 'reset_at', 'is_active')
if not state[1] then return -1 end
if state[1] ~= ARGV[1] or state[2] ~= ARGV[2] then return 0 end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
return 1
`)

	// claimScript moves last_notified_bucket from ARGV[1] to ARGV[2]. The
	// empty string stands for no band.
	claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local current = redis.call('HGET', KEYS[1], 'last_notified_bucket') or ''
if current ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'last_notified_bucket', ARGV[2], 'updated_at', ARGV[3])
return 1
`)

	// setIfExistsScript writes the field/value pairs in ARGV only when the
	// hash exists.
	setIfExistsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)
)

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisBackendConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, newError("redis", "connect", err)
	}

	return NewRedisBackendFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client redis.UniversalClient, keyPrefix string) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "spendcap:"
	}
	return &RedisBackend{client: client, keyPrefix: keyPrefix}
}

func (r *RedisBackend) budgetKey(id string) string {
	return r.keyPrefix + "budget:" + id
}

func (r *RedisBackend) allKey() string {
	return r.keyPrefix + "budgets"
}

func (r *RedisBackend) ownerKey(ownerID string) string {
	return r.keyPrefix + "owner:" + ownerID
}

// Create stores the hash and index entries. The id field is written with
// HSETNX first so concurrent creates of the same ID cannot both succeed.
func (r *RedisBackend) Create(ctx context.Context, b *budget.Budget) error {
	if b == nil || b.ID == "" {
		return newError("redis", "create", fmt.Errorf("budget id cannot be empty"))
	}

	key := r.budgetKey(b.ID)
	ok, err := r.client.HSetNX(ctx, key, "id", b.ID).Result()
	if err != nil {
		return newError("redis", "create", err)
	}
	if !ok {
		return ErrAlreadyExists
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeHash(b))
		pipe.SAdd(ctx, r.allKey(), b.ID)
		pipe.SAdd(ctx, r.ownerKey(b.OwnerID), b.ID)
		return nil
	})
	if err != nil {
		return newError("redis", "create", err)
	}
	return nil
}

// Get loads one budget hash.
func (r *RedisBackend) Get(ctx context.Context, id string) (*budget.Budget, error) {
	fields, err := r.client.HGetAll(ctx, r.budgetKey(id)).Result()
	if err != nil {
		return nil, newError("redis", "get", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	b, err := decodeHash(fields)
	if err != nil {
		return nil, newError("redis", "decode", err)
	}
	return b, nil
}

// List reads the relevant index set and loads hashes in one pipeline.
func (r *RedisBackend) List(ctx context.Context, filter Filter) ([]*budget.Budget, error) {
	index := r.allKey()
	if filter.OwnerID != "" {
		index = r.ownerKey(filter.OwnerID)
	}

	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, newError("redis", "list", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.budgetKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, newError("redis", "list", err)
	}

	out := make([]*budget.Budget, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Deleted between SMEMBERS and HGETALL.
			continue
		}
		b, err := decodeHash(fields)
		if err != nil {
			return nil, newError("redis", "decode", err)
		}
		if filter.match(b) {
			out = append(out, b)
		}
	}
	sortBudgets(out)
	return out, nil
}

// Update writes the definition fields if reset_at and is_active still
// match expect.
func (r *RedisBackend) Update(ctx context.Context, b *budget.Budget, expect Precondition) error {
	res, err := updateScript.Run(ctx, r.client, []string{r.budgetKey(b.ID)},
		strconv.FormatInt(encodeTime(expect.ResetAt), 10),
		boolString(expect.IsActive),
		"name", b.Name,
		"period", string(b.Period),
		"limit_usd", b.LimitUSD.String(),
		"scope", string(b.Scope.Kind),
		"scope_identifier", b.Scope.Identifier,
		"action_on_breach", string(b.ActionOnBreach),
		"reset_at", strconv.FormatInt(encodeTime(b.ResetAt), 10),
		"is_active", boolString(b.IsActive),
		"updated_at", strconv.FormatInt(encodeTime(b.UpdatedAt), 10),
	).Int64()
	if err != nil {
		return newError("redis", "update", err)
	}
	switch res {
	case -1:
		return ErrNotFound
	case 0:
		return ErrConflict
	}
	return nil
}

// Deactivate clears the active flag.
func (r *RedisBackend) Deactivate(ctx context.Context, id string, at time.Time) error {
	return r.setIfExists(ctx, "deactivate", id,
		"is_active", "0",
		"updated_at", strconv.FormatInt(encodeTime(at), 10),
	)
}

// Delete removes the hash and its index entries.
func (r *RedisBackend) Delete(ctx context.Context, id string) error {
	key := r.budgetKey(id)
	owner, err := r.client.HGet(ctx, key, "owner_id").Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return newError("redis", "delete", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, r.allKey(), id)
		pipe.SRem(ctx, r.ownerKey(owner), id)
		return nil
	})
	if err != nil {
		return newError("redis", "delete", err)
	}
	return nil
}

// IncrementSpend runs HINCRBY inside the existence-checking script.
func (r *RedisBackend) IncrementSpend(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	micros, err := incrementScript.Run(ctx, r.client,
		[]string{r.budgetKey(id)},
		budget.ToMicros(amount),
		encodeTime(at),
	).Int64()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, newError("redis", "increment_spend", err)
	}
	return budget.FromMicros(micros), nil
}

// ResetSpend compares reset_at and resets in one script.
func (r *RedisBackend) ResetSpend(ctx context.Context, id string, expected, next, at time.Time) (bool, error) {
	res, err := resetScript.Run(ctx, r.client,
		[]string{r.budgetKey(id)},
		strconv.FormatInt(encodeTime(expected), 10),
		strconv.FormatInt(encodeTime(next), 10),
		strconv.FormatInt(encodeTime(at), 10),
	).Int64()
	if err != nil {
		return false, newError("redis", "reset_spend", err)
	}
	switch res {
	case -1:
		return false, ErrNotFound
	case 1:
		return true, nil
	}
	return false, nil
}

// ClaimBucket compares and moves the notified band in one script.
func (r *RedisBackend) ClaimBucket(ctx context.Context, id string, expected *int, bucket int, at time.Time) (bool, error) {
	prev := ""
	if expected != nil {
		prev = strconv.Itoa(*expected)
	}
	res, err := claimScript.Run(ctx, r.client, []string{r.budgetKey(id)},
		prev,
		strconv.Itoa(bucket),
		strconv.FormatInt(encodeTime(at), 10),
	).Int64()
	if err != nil {
		return false, newError("redis", "claim_bucket", err)
	}
	switch res {
	case -1:
		return false, ErrNotFound
	case 1:
		return true, nil
	}
	return false, nil
}

// Ping checks the Redis connection.
func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return newError("redis", "ping", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) setIfExists(ctx context.Context, op, id string, pairs ...any) error {
	n, err := setIfExistsScript.Run(ctx, r.client, []string{r.budgetKey(id)}, pairs...).Int64()
	if err != nil {
		return newError("redis", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeHash(b *budget.Budget) map[string]any {
	bucket := ""
	if b.LastNotifiedBucket != nil {
		bucket = strconv.Itoa(*b.LastNotifiedBucket)
	}
	return map[string]any{
		"id":                   b.ID,
		"owner_id":             b.OwnerID,
		"name":                 b.Name,
		"period":               string(b.Period),
		"limit_usd":            b.LimitUSD.String(),
		"scope":                string(b.Scope.Kind),
		"scope_identifier":     b.Scope.Identifier,
		"action_on_breach":     string(b.ActionOnBreach),
		"spend_micros":         budget.ToMicros(b.CurrentSpendUSD),
		"reset_at":             encodeTime(b.ResetAt),
		"is_active":            boolString(b.IsActive),
		"last_notified_bucket": bucket,
		"created_at":           encodeTime(b.CreatedAt),
		"updated_at":           encodeTime(b.UpdatedAt),
	}
}

func decodeHash(f map[string]string) (*budget.Budget, error) {
	limit, err := decimal.NewFromString(f["limit_usd"])
	if err != nil {
		return nil, fmt.Errorf("invalid limit_usd %q: %w", f["limit_usd"], err)
	}
	ints := make(map[string]int64, 4)
	for _, name := range []string{"spend_micros", "reset_at", "created_at", "updated_at"} {
		v, err := strconv.ParseInt(f[name], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, f[name], err)
		}
		ints[name] = v
	}

	b := &budget.Budget{
		ID:              f["id"],
		OwnerID:         f["owner_id"],
		Name:            f["name"],
		Period:          budget.Period(f["period"]),
		LimitUSD:        limit,
		Scope:           budget.NewScope(budget.ScopeKind(f["scope"]), f["scope_identifier"]),
		ActionOnBreach:  budget.Action(f["action_on_breach"]),
		CurrentSpendUSD: budget.FromMicros(ints["spend_micros"]),
		ResetAt:         decodeTime(ints["reset_at"]),
		IsActive:        f["is_active"] == "1",
		CreatedAt:       decodeTime(ints["created_at"]),
		UpdatedAt:       decodeTime(ints["updated_at"]),
	}
	if s := f["last_notified_bucket"]; s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid last_notified_bucket %q: %w", s, err)
		}
		b.LastNotifiedBucket = &v
	}
	return b, nil
}

func boolString(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
