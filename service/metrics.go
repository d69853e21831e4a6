package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 账本操作指标
type Metrics struct {
	operations    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewMetrics 创建并注册指标；reg 为 nil 时只创建不注册（测试用）
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spnd",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by operation and result.",
		}, []string{"operation", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spnd",
			Subsystem: "ledger",
			Name:      "notifications_total",
			Help:      "Best-effort notifications by kind and result.",
		}, []string{"kind", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.notifications)
	}
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) observeNotification(kind NotificationKind, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(string(kind), result).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var ve *ValidationError
	var ue *UnknownParticipantError
	var de *DuplicateKeyError
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrBudgetNotFound):
		return "budget_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ue):
		return "unknown_participant"
	case errors.As(err, &de):
		return "duplicate_key"
	default:
		return "error"
	}
}
