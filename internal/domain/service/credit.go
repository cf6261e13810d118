// Package service 定义领域服务接口
package service

import (
	"context"
	"fmt"
)

// InsufficientCreditError 信用点余额不足
type InsufficientCreditError struct {
	UserID    string
	Required  int64
	Remaining int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit for user %s: required=%d remaining=%d",
		e.UserID, e.Required, e.Remaining)
}

// CreditGate 信用点闸门
// 每张卡片出图前预扣，成功后落账，失败时退还
type CreditGate interface {
	// Reserve 预扣信用点，余额不足时返回 *InsufficientCreditError
	Reserve(ctx context.Context, userID string, amount int64) error

	// Commit 确认扣费
	Commit(ctx context.Context, userID string, amount int64) error

	// Refund 退还预扣的信用点
	Refund(ctx context.Context, userID string, amount int64) error

	// Balance 查询可用余额
	Balance(ctx context.Context, userID string) (int64, error)
}
