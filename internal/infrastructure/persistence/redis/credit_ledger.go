// Package redis 提供 Redis 信用点账本实现
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"inknote-ai-api/internal/domain/service"
	"inknote-ai-api/pkg/metrics"
)

// 余额充足时扣减并返回剩余值，不足时返回 -1
var reserveScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if balance < amount then
	return -1
end
return redis.call('DECRBY', KEYS[1], amount)
`)

// CreditLedger 基于 Redis 的信用点账本
// Reserve 即时扣减余额，Refund 在生成失败时返还
type CreditLedger struct {
	client *Client
}

// NewCreditLedger 创建信用点账本
func NewCreditLedger(client *Client) *CreditLedger {
	return &CreditLedger{client: client}
}

func creditKey(userID string) string {
	return fmt.Sprintf("credit:balance:%s", userID)
}

// Reserve 预扣信用点
func (l *CreditLedger) Reserve(ctx context.Context, userID string, amount int64) error {
	ctx, span := tracer.Start(ctx, "credit.Reserve")
	span.SetAttributes(
		attribute.String("credit.user_id", userID),
		attribute.Int64("credit.amount", amount),
	)
	defer span.End()

	result, err := reserveScript.Run(ctx, l.client.rdb, []string{creditKey(userID)}, amount).Int64()
	if err != nil {
		span.RecordError(err)
		metrics.CreditDebitTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to reserve credit: %w", err)
	}

	if result < 0 {
		balance, _ := l.Balance(ctx, userID)
		metrics.CreditDebitTotal.WithLabelValues("insufficient").Inc()
		return &service.InsufficientCreditError{
			UserID:    userID,
			Required:  amount,
			Remaining: balance,
		}
	}

	metrics.CreditDebitTotal.WithLabelValues("reserved").Inc()
	return nil
}

// Commit 确认扣费
// Reserve 已经完成实际扣减，这里只记录结果
func (l *CreditLedger) Commit(ctx context.Context, userID string, amount int64) error {
	_, span := tracer.Start(ctx, "credit.Commit")
	span.SetAttributes(
		attribute.String("credit.user_id", userID),
		attribute.Int64("credit.amount", amount),
	)
	defer span.End()

	metrics.CreditDebitTotal.WithLabelValues("committed").Inc()
	return nil
}

// Refund 退还预扣的信用点
func (l *CreditLedger) Refund(ctx context.Context, userID string, amount int64) error {
	ctx, span := tracer.Start(ctx, "credit.Refund")
	span.SetAttributes(
		attribute.String("credit.user_id", userID),
		attribute.Int64("credit.amount", amount),
	)
	defer span.End()

	if err := l.client.rdb.IncrBy(ctx, creditKey(userID), amount).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to refund credit: %w", err)
	}

	metrics.CreditDebitTotal.WithLabelValues("refunded").Inc()
	return nil
}

// Balance 查询可用余额
func (l *CreditLedger) Balance(ctx context.Context, userID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "credit.Balance")
	span.SetAttributes(attribute.String("credit.user_id", userID))
	defer span.End()

	val, err := l.client.rdb.Get(ctx, creditKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get credit balance: %w", err)
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid credit balance %q: %w", val, err)
	}
	return balance, nil
}

// Grant 充值信用点（管理接口使用）
func (l *CreditLedger) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "credit.Grant")
	span.SetAttributes(
		attribute.String("credit.user_id", userID),
		attribute.Int64("credit.amount", amount),
	)
	defer span.End()

	balance, err := l.client.rdb.IncrBy(ctx, creditKey(userID), amount).Result()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to grant credit: %w", err)
	}
	return balance, nil
}
