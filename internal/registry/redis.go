package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"RefreshSentinel/internal/model"
)

// casScript swaps the state hash only when its version matches ARGV[1].
// Returns 1 on success, 0 on version mismatch, -1 when the key is missing.
const casScript = `
local v = redis.call('HGET', KEYS[1], 'version')
if not v then return -1 end
if tonumber(v) ~= tonumber(ARGV[1]) then return 0 end
redis.call('HSET', KEYS[1], 'version', tonumber(v) + 1, 'state', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
return 1
`

// createScript inserts version 1 unless the key already exists.
const createScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'version', 1, 'state', ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`

// RedisStore keeps one hash per symbol ({version, state}) plus an index set.
// Compare-and-swap runs as a Lua script so it is atomic on the server.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to addr, checks the server answers, and returns a
// store namespaced under prefix.
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	c := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(c, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(c redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sentinel:"
	}
	return &RedisStore{client: c, prefix: prefix}
}

func (r *RedisStore) key(symbol string) string {
	return r.prefix + "symbol:" + model.NormalizeSymbol(symbol)
}

func (r *RedisStore) indexKey() string { return r.prefix + "symbols" }

func (r *RedisStore) Get(ctx context.Context, symbol string) (Entry, error) {
	vals, err := r.client.HMGet(ctx, r.key(symbol), "version", "state").Result()
	if err != nil {
		return Entry{}, fmt.Errorf("hmget %s: %w", symbol, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Entry{}, ErrNotFound
	}
	verStr, _ := vals[0].(string)
	stateStr, _ := vals[1].(string)
	version, err := strconv.ParseUint(verStr, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%s version %q: %w", symbol, verStr, err)
	}
	var st model.SymbolState
	if err := json.Unmarshal([]byte(stateStr), &st); err != nil {
		return Entry{}, fmt.Errorf("%s state: %w", symbol, err)
	}
	if st.Boosts == nil {
		st.Boosts = []model.Boost{}
	}
	return Entry{State: st, Version: version}, nil
}

// GetAll walks the index set. Members whose hash vanished are skipped.
func (r *RedisStore) GetAll(ctx context.Context) ([]Entry, error) {
	members, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	sort.Strings(members)
	out := make([]Entry, 0, len(members))
	for _, m := range members {
		e, err := r.Get(ctx, m)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *RedisStore) CompareAndSwap(ctx context.Context, symbol string, expectedVersion uint64, next model.SymbolState) (bool, error) {
	sym := model.NormalizeSymbol(symbol)
	next.Symbol = sym
	payload, err := encodeState(next)
	if err != nil {
		return false, err
	}
	res, err := r.client.Eval(ctx, casScript, []string{r.key(sym), r.indexKey()},
		strconv.FormatUint(expectedVersion, 10), payload, sym).Int()
	if err != nil {
		return false, fmt.Errorf("cas %s: %w", sym, err)
	}
	switch res {
	case 1:
		return true, nil
	case -1:
		return false, ErrNotFound
	default:
		return false, nil
	}
}

func (r *RedisStore) Create(ctx context.Context, state model.SymbolState) error {
	state.Symbol = model.NormalizeSymbol(state.Symbol)
	payload, err := encodeState(state)
	if err != nil {
		return err
	}
	res, err := r.client.Eval(ctx, createScript, []string{r.key(state.Symbol), r.indexKey()},
		payload, state.Symbol).Int()
	if err != nil {
		return fmt.Errorf("create %s: %w", state.Symbol, err)
	}
	if res == 0 {
		return ErrExists
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

func encodeState(s model.SymbolState) (string, error) {
	if s.Boosts == nil {
		s.Boosts = []model.Boost{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", s.Symbol, err)
	}
	return string(data), nil
}
