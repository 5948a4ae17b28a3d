package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const eventsKey = "audit:login_attempts"

// Store は監査レコードを Redis のリストに新しい順で保存します。
type Store struct {
	rdb       redis.UniversalClient
	retention int
}

// NewStore は Store を作成します。retention 件を超えた古いレコードは削除されます。
func NewStore(rdb redis.UniversalClient, retention int) *Store {
	if retention <= 0 {
		retention = 200
	}
	return &Store{
		rdb:       rdb,
		retention: retention,
	}
}

// Append はレコードを先頭に追加します。
func (s *Store) Append(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, eventsKey, payload)
	pipe.LTrim(ctx, eventsKey, 0, int64(s.retention-1))
	_, err = pipe.Exec(ctx)
	return err
}

// Recent は新しい順に最大 limit 件のレコードを返します。
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return []Event{}, nil
	}
	raw, err := s.rdb.LRange(ctx, eventsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
