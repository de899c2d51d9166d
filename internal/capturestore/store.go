// Package capturestore keeps a short history of finished audio captures in redis.
package capturestore

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dense-identity/applink/internal/applink"
	"github.com/dense-identity/applink/internal/audio"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Options struct {
	Enabled    bool
	Addr       string
	Username   string
	Password   string
	DB         int
	Prefix     string
	AppID      string
	TTL        time.Duration
	MaxEntries int64
}

// Store implements applink.CaptureRecorder. A nil *Store is a valid,
// disabled store: every method is a no-op.
type Store struct {
	client     *redis.Client
	key        string
	ttl        time.Duration
	maxEntries int64
}

// New connects to redis. It returns nil, nil when the store is disabled.
func New(ctx context.Context, opts Options) (*Store, error) {
	if !opts.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required when capture history is enabled")
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "applink:captures:v1"
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 50
	}

	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: strings.TrimSpace(opts.Username),
		Password: opts.Password,
		DB:       opts.DB,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Printf("[CaptureStore] Connected to Redis at %s", addr)
	return &Store{
		client:     c,
		key:        listKey(prefix, opts.AppID),
		ttl:        opts.TTL,
		maxEntries: maxEntries,
	}, nil
}

func listKey(prefix, appID string) string {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		appID = "default"
	}
	return fmt.Sprintf("%s:%s", prefix, appID)
}

func (s *Store) Close() {
	if s == nil || s.client == nil {
		return
	}
	_ = s.client.Close()
}

// Record pushes an entry onto the history list. The digest is taken from the
// record; it is only computed here when the caller left it empty.
func (s *Store) Record(ctx context.Context, rec applink.CaptureRecord) error {
	if s == nil || s.client == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if rec.Digest == "" {
		digest, err := audio.FileDigest(rec.WAVPath)
		if err != nil {
			return err
		}
		rec.Digest = digest
	}
	data, err := EncodeEntry(EntryFromRecord(uuid.NewString(), rec))
	if err != nil {
		return err
	}

	// Newest at head
	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("failed to store capture: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			log.Printf("[CaptureStore] Warning: failed to set TTL on %s: %v", s.key, err)
		}
	}
	if err := s.client.LTrim(ctx, s.key, 0, s.maxEntries-1).Err(); err != nil {
		log.Printf("[CaptureStore] Warning: failed to trim %s: %v", s.key, err)
	}
	return nil
}

// History returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) History(ctx context.Context, limit int64) ([]Entry, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}

	data, err := s.client.LRange(ctx, s.key, 0, stop).Result()
	if err == redis.Nil {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capture history: %w", err)
	}

	entries := make([]Entry, 0, len(data))
	for _, raw := range data {
		e, err := DecodeEntry([]byte(raw))
		if err != nil {
			log.Printf("[CaptureStore] Skipping corrupt entry: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Len returns the number of stored entries
func (s *Store) Len(ctx context.Context) (int64, error) {
	if s == nil || s.client == nil {
		return 0, nil
	}
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get capture history length: %w", err)
	}
	return n, nil
}
