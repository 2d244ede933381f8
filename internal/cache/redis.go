package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"scriptreel/internal/fingerprint"
)

const (
	defaultRedisPrefix = "scriptreel:cache:"
	redisScanCount     = 200
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis stores each entry as a JSON string under <prefix><fingerprint>.
type Redis struct {
	client *redis.Client
	prefix string
	tracer trace.Tracer
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedis(client, opts.Prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, tracer: otel.GetTracerProvider().Tracer("scriptreel/cache")}
}

func (r *Redis) key(fp string) string { return r.prefix + fp }

func (r *Redis) Get(ctx context.Context, fp string) (Entry, bool, error) {
	ctx, span := r.tracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.fingerprint", fingerprint.Short(fp))))
	defer span.End()

	raw, err := r.client.Get(ctx, r.key(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return Entry{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redis get failed")
		return Entry{}, false, fmt.Errorf("cache get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode entry")
		return Entry{}, false, fmt.Errorf("cache decode: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return entry, true, nil
}

func (r *Redis) Put(ctx context.Context, entry Entry) error {
	ctx, span := r.tracer.Start(ctx, "cache.Put",
		trace.WithAttributes(attribute.String("cache.fingerprint", fingerprint.Short(entry.Fingerprint))))
	defer span.End()

	data, err := json.Marshal(entry)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := r.client.Set(ctx, r.key(entry.Fingerprint), data, 0).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redis set failed")
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// scanKeys walks every key under the prefix, handing batches to fn.
func (r *Redis) scanKeys(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", redisScanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *Redis) EvictAll(ctx context.Context) error {
	err := r.scanKeys(ctx, func(keys []string) error {
		return r.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}

func (r *Redis) SizeEstimate(ctx context.Context) (Size, error) {
	var size Size
	err := r.scanKeys(ctx, func(keys []string) error {
		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for _, value := range values {
			raw, ok := value.(string)
			if !ok {
				continue
			}
			size.Entries++
			var entry Entry
			if json.Unmarshal([]byte(raw), &entry) == nil {
				size.Bytes += fileBytes(entry.LocalPath)
			}
		}
		return nil
	})
	if err != nil {
		return Size{}, fmt.Errorf("cache size: %w", err)
	}
	return size, nil
}

func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
