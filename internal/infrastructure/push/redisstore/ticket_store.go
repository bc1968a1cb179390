package redisstore

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/application/push"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

const (
	dueKey  = "notifier:push:tickets:due"
	dataKey = "notifier:push:tickets:data"
)

// TicketStore keeps pending tickets in Redis so a restart does not lose
// receipt checks. Due times live in a sorted set scored by unix millis and
// ticket bodies in a hash.
type TicketStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

var _ push.TicketStore = (*TicketStore)(nil)

// NewTicketStore creates a store on rdb
func NewTicketStore(rdb *redis.Client, logger *zap.Logger) *TicketStore {
	return &TicketStore{rdb: rdb, logger: logger.Named("ticket-store")}
}

// Add remembers tickets.
func (s *TicketStore) Add(ctx context.Context, tickets ...push.PendingTicket) error {
	if len(tickets) == 0 {
		return nil
	}

	pipe := s.rdb.TxPipeline()
	for _, t := range tickets {
		body, err := json.Marshal(t)
		if err != nil {
			return apperrors.Persistence("encode pending ticket", err)
		}
		pipe.HSet(ctx, dataKey, t.TicketID, body)
		pipe.ZAdd(ctx, dueKey, redis.Z{Score: score(t.DueAt), Member: t.TicketID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Persistence("store pending tickets", err)
	}
	return nil
}

// Due returns up to limit tickets due at now after offset, earliest first.
// Equal scores are ordered by ticket id.
func (s *TicketStore) Due(ctx context.Context, now time.Time, offset, limit int) ([]push.PendingTicket, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.FormatFloat(score(now), 'f', 0, 64),
		Offset: int64(offset),
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, apperrors.Persistence("select due tickets", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	bodies, err := s.rdb.HMGet(ctx, dataKey, ids...).Result()
	if err != nil {
		return nil, apperrors.Persistence("load due tickets", err)
	}

	out := make([]push.PendingTicket, 0, len(ids))
	var orphans []string
	for i, raw := range bodies {
		body, ok := raw.(string)
		if !ok {
			orphans = append(orphans, ids[i])
			continue
		}
		var t push.PendingTicket
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			s.logger.Warn("dropping undecodable ticket", zap.String("ticket_id", ids[i]), zap.Error(err))
			orphans = append(orphans, ids[i])
			continue
		}
		out = append(out, t)
	}

	if len(orphans) > 0 {
		if err := s.Remove(ctx, orphans...); err != nil {
			s.logger.Warn("failed to drop orphaned tickets", zap.Int("count", len(orphans)), zap.Error(err))
		}
	}
	return out, nil
}

// Remove forgets tickets.
func (s *TicketStore) Remove(ctx context.Context, ticketIDs ...string) error {
	if len(ticketIDs) == 0 {
		return nil
	}

	members := make([]interface{}, len(ticketIDs))
	for i, id := range ticketIDs {
		members[i] = id
	}

	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, dueKey, members...)
	pipe.HDel(ctx, dataKey, ticketIDs...)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Persistence("remove pending tickets", err)
	}
	return nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
