package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"mailbridge/internal/domain"
	"mailbridge/internal/mailparse"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrNotFound reports that a message id has no live raw/meta keys, either
// because it expired or was never stored.
var ErrNotFound = errors.New("redisstore: message not found")

const indexTimestamp = "index:timestamp"

type Store struct {
	client    *redis.Client
	ttl       time.Duration
	log       *logrus.Entry
	closeOnce sync.Once
}

func New(redisURL string, ttlSeconds int, log *logrus.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &Store{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		log:    log.WithField("component", "redisstore"),
	}, nil
}

func rawKey(id string) string { return "email:raw:" + id }
func metaKey(id string) string { return "email:meta:" + id }
func domainKey(name string) string { return "index:domain:" + name }

// Store persists the raw message and its metadata under TTL-bound keys, adds
// the id to the recipient-domain set and the recency index, then sweeps
// recency entries older than the TTL window. The sweep is best effort.
func (s *Store) Store(ctx context.Context, id string, raw []byte, meta *domain.Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	dkey := domainKey(meta.RecipientDomain)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, rawKey(id), raw, s.ttl)
	pipe.Set(ctx, metaKey(id), data, s.ttl)
	pipe.SAdd(ctx, dkey, id)
	// Refresh the set's TTL on every write so an idle domain's index expires
	// with its last message instead of leaking.
	pipe.Expire(ctx, dkey, s.ttl)
	pipe.ZAdd(ctx, indexTimestamp, redis.Z{
		Score:  float64(meta.ReceivedAt.Unix()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store message %s: %w", id, err)
	}

	cutoff := strconv.FormatInt(time.Now().Add(-s.ttl).Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, indexTimestamp, "0", cutoff).Err(); err != nil {
		s.log.WithError(err).Warn("recency index sweep failed")
	}

	return nil
}

// Retrieve returns the full record for an id. Both the raw payload and the
// metadata must still be live; the body structure is re-parsed on demand.
func (s *Store) Retrieve(ctx context.Context, id string) (*domain.StorageRecord, error) {
	vals, err := s.client.MGet(ctx, rawKey(id), metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("retrieve message %s: %w", id, err)
	}

	raw, rawOK := vals[0].(string)
	metaJSON, metaOK := vals[1].(string)
	if !rawOK || !metaOK {
		return nil, ErrNotFound
	}

	var meta domain.Metadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata %s: %w", id, err)
	}

	rec := &domain.StorageRecord{
		Raw:      []byte(raw),
		Metadata: &meta,
	}
	if structure, err := mailparse.Structure(rec.Raw); err == nil {
		rec.Structure = structure
	}
	return rec, nil
}

// Search returns records by recipient domain (unordered, capped at limit) or,
// with an empty domain, the most recent records newest first. Ids whose keys
// already expired are silently skipped, so fewer than limit may come back.
func (s *Store) Search(ctx context.Context, name string, limit, offset int) ([]*domain.StorageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		ids []string
		err error
	)
	if name != "" {
		ids, err = s.client.SMembers(ctx, domainKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("search domain %s: %w", name, err)
		}
		if len(ids) > limit {
			ids = ids[:limit]
		}
	} else {
		ids, err = s.client.ZRevRange(ctx, indexTimestamp, int64(offset), int64(offset+limit-1)).Result()
		if err != nil {
			return nil, fmt.Errorf("search recent: %w", err)
		}
	}

	records := make([]*domain.StorageRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Retrieve(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.log.WithField("msg_id", id).WithError(err).Warn("skipping unreadable record")
			}
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Delete removes a message and its index memberships.
func (s *Store) Delete(ctx context.Context, id string) error {
	rec, err := s.Retrieve(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, rawKey(id), metaKey(id))
	pipe.ZRem(ctx, indexTimestamp, id)
	if rec != nil {
		pipe.SRem(ctx, domainKey(rec.Metadata.RecipientDomain), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	return nil
}

// Close releases the connection; calling it more than once is a no-op.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.client.Close()
	})
	return err
}
