package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
)

const DefaultChannel = "kanso:settlements"

var (
	_ domain.Notifier = (*RedisNotifier)(nil)
	_ domain.Notifier = NopNotifier{}
)

// RedisNotifier fans settlement results out over redis pub/sub so
// presentation and coaching services can react without polling.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	log     *logger.Logger
}

func NewRedisNotifier(rdb *redis.Client, channel string, log *logger.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisNotifier{rdb: rdb, channel: channel, log: log.With("component", "settlement_notifier")}
}

func (n *RedisNotifier) PublishSettlement(ctx context.Context, result *domain.SettlementResult) error {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement result: %w", err)
	}
	receivers, err := n.rdb.Publish(ctx, n.channel, raw).Result()
	if err != nil {
		return fmt.Errorf("failed to publish settlement: %w", err)
	}
	n.log.Debug("settlement published", "report_id", result.ReportID, "receivers", receivers)
	return nil
}

// Subscribe delivers decoded results to onResult until ctx ends.
func (n *RedisNotifier) Subscribe(ctx context.Context, onResult func(domain.SettlementResult)) error {
	if onResult == nil {
		return fmt.Errorf("onResult callback required")
	}

	sub := n.rdb.Subscribe(ctx, n.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var result domain.SettlementResult
			if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
				n.log.Warn("dropping malformed settlement message", "error", err)
				continue
			}
			onResult(result)
		}
	}
}

// NopNotifier is used when redis is disabled.
type NopNotifier struct{}

func (NopNotifier) PublishSettlement(context.Context, *domain.SettlementResult) error { return nil }
