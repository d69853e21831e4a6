package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Income 收入记录模型，创建后不可修改
type Income struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	UserID     uint            `json:"user_id" gorm:"index;not null"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(20,3);not null"`
	Source     string          `json:"source" gorm:"size:100;not null"`
	Category   string          `json:"category" gorm:"size:50;not null;index"`
	IncomeTime time.Time       `json:"income_time" gorm:"not null;index"`
	CreatedAt  time.Time       `json:"created_at"`
	User       User            `json:"-" gorm:"foreignKey:UserID"`
}

func (Income) TableName() string {
	return "incomes"
}
