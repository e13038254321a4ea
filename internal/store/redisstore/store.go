// Package redisstore keeps long-term memory in Redis: one JSON value per task
// plus sorted-set indexes scored by promotion time.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shahincodev/Sofware-AI-English/internal/store"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

const (
	defaultPrefix = "software-ai:ltm:"
	pageSize      = 100
)

// Store is the Redis implementation of store.Store.
type Store struct {
	client *redis.Client
	prefix string
}

// Open connects using a redis:// URL and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return New(client, ""), nil
}

// New wraps an existing client. An empty prefix uses the default key namespace.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(taskID string) string { return s.prefix + "record:" + taskID }

func (s *Store) indexKey(mode models.Mode) string {
	if mode == "" {
		return s.prefix + "index"
	}
	return s.prefix + "index:" + string(mode)
}

// score orders by promotion time in microseconds, which float64 holds exactly.
func score(rec models.MemoryRecord) float64 {
	return float64(rec.PromotedAt.UnixMicro())
}

// Append writes the record and its index entries in one MULTI. SETNX decides
// whether this call inserted; ZADD NX keeps the first score on duplicates.
func (s *Store) Append(ctx context.Context, rec models.MemoryRecord) (bool, error) {
	if rec.TaskID == "" {
		return false, errors.New("task id required")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	var setnx *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		setnx = p.SetNX(ctx, s.recordKey(rec.TaskID), b, 0)
		z := redis.Z{Score: score(rec), Member: rec.TaskID}
		p.ZAddNX(ctx, s.indexKey(""), z)
		p.ZAddNX(ctx, s.indexKey(rec.Mode), z)
		return nil
	})
	if err != nil {
		return false, err
	}
	return setnx.Val(), nil
}

func (s *Store) Get(ctx context.Context, taskID string) (*models.MemoryRecord, error) {
	b, err := s.client.Get(ctx, s.recordKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec models.MemoryRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Query pages through the index lazily; each page is one ZRANGEBYSCORE plus one MGET.
func (s *Store) Query(ctx context.Context, f store.Filter) iter.Seq2[models.MemoryRecord, error] {
	return func(yield func(models.MemoryRecord, error) bool) {
		min, max := "-inf", "+inf"
		if !f.Since.IsZero() {
			min = strconv.FormatInt(f.Since.UnixMicro(), 10)
		}
		if !f.Until.IsZero() {
			// Inclusive at microsecond granularity; Match trims the remainder.
			max = strconv.FormatInt(f.Until.UnixMicro(), 10)
		}
		key := s.indexKey(f.Mode)
		yielded := 0
		for offset := int64(0); ; {
			ids, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
				Min: min, Max: max, Offset: offset, Count: pageSize,
			}).Result()
			if err != nil {
				yield(models.MemoryRecord{}, err)
				return
			}
			if len(ids) == 0 {
				return
			}
			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = s.recordKey(id)
			}
			vals, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				yield(models.MemoryRecord{}, err)
				return
			}
			for _, v := range vals {
				raw, ok := v.(string)
				if !ok {
					continue
				}
				var rec models.MemoryRecord
				if err := json.Unmarshal([]byte(raw), &rec); err != nil {
					yield(models.MemoryRecord{}, err)
					return
				}
				if !f.Match(rec) {
					continue
				}
				if !yield(rec, nil) {
					return
				}
				yielded++
				if f.Limit > 0 && yielded >= f.Limit {
					return
				}
			}
			if len(ids) < pageSize {
				return
			}
			offset += int64(len(ids))
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ store.Store = (*Store)(nil)
