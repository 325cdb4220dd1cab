package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const DefaultRedisPrefix = "tensorlink:"

// Redis stores entries as JSON under <prefix>tensor:<id> and indexes ids in
// the set <prefix>tensors.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// DialRedis connects and pings before returning.
func DialRedis(ctx context.Context, opts *redis.Options, prefix string) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("journal: redis ping %s: %w", opts.Addr, err)
	}
	return NewRedis(client, prefix), nil
}

func (r *Redis) entryKey(tensorID uint32) string {
	return r.prefix + "tensor:" + strconv.FormatUint(uint64(tensorID), 10)
}

func (r *Redis) indexKey() string {
	return r.prefix + "tensors"
}

func (r *Redis) Put(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.entryKey(e.TensorID), raw, redis.KeepTTL)
		p.SAdd(ctx, r.indexKey(), e.TensorID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("journal: put tensor %d: %w", e.TensorID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, tensorID uint32) (Entry, error) {
	raw, err := r.client.Get(ctx, r.entryKey(tensorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("journal: get tensor %d: %w", tensorID, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("journal: decode tensor %d: %w", tensorID, err)
	}
	return e, nil
}

func (r *Redis) List(ctx context.Context) ([]Entry, error) {
	members, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	if len(members) == 0 {
		return []Entry{}, nil
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			continue
		}
		keys = append(keys, r.entryKey(uint32(id)))
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	out := make([]Entry, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TensorID < out[j].TensorID
	})
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
