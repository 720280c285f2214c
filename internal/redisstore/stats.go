package redisstore

import (
	"context"
	"strconv"
	"time"
)

// CountMessages returns the number of live stored messages.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	var cursor uint64
	var count int64

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, "email:raw:*", 100).Result()
		if err != nil {
			return 0, err
		}
		count += int64(len(keys))
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

// CountDomains returns the number of recipient domains with a live index set.
func (s *Store) CountDomains(ctx context.Context) (int64, error) {
	var cursor uint64
	var count int64

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, "index:domain:*", 100).Result()
		if err != nil {
			return 0, err
		}
		count += int64(len(keys))
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

// MessagesSince counts recency-index entries newer than the given time.
func (s *Store) MessagesSince(ctx context.Context, since time.Time) (int64, error) {
	min := strconv.FormatInt(since.Unix(), 10)
	return s.client.ZCount(ctx, indexTimestamp, min, "+inf").Result()
}
