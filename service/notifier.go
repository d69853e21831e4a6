package service

import (
	"context"

	"github.com/shopspring/decimal"
)

// NotificationKind 通知模板类型
type NotificationKind string

const (
	NotifyExpenseRecorded    NotificationKind = "expense_recorded"
	NotifyExpenseRejected    NotificationKind = "expense_rejected"
	NotifySharedBudgetInvite NotificationKind = "shared_budget_invite"
)

// NotificationData 通知模板参数，按 Kind 使用其中部分字段
type NotificationData struct {
	Username    string
	Amount      decimal.Decimal
	Balance     decimal.Decimal
	Description string
	Category    string
	BudgetName  string
	AddedBy     string
}

// Notifier 通知发送方。调用方只记录错误，不会因失败回滚账本
type Notifier interface {
	Notify(ctx context.Context, to string, kind NotificationKind, data NotificationData) error
}

// NopNotifier 不发送任何通知
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, NotificationKind, NotificationData) error {
	return nil
}
