package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SharedBudget 共享预算
// Amount 只增不减，由出资操作累加
type SharedBudget struct {
	ID           uint                      `json:"id" gorm:"primaryKey"`
	UserID       uint                      `json:"user_id" gorm:"index;not null"` // 创建者
	Name         string                    `json:"name" gorm:"size:100;not null"`
	Amount       decimal.Decimal           `json:"amount" gorm:"type:decimal(20,3);not null;default:0"`
	Participants []SharedBudgetParticipant `json:"participants" gorm:"foreignKey:SharedBudgetID"`
	Creator      *User                     `json:"creator,omitempty" gorm:"foreignKey:UserID"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
	DeletedAt    gorm.DeletedAt            `json:"-" gorm:"index"`
}

func (SharedBudget) TableName() string {
	return "shared_budgets"
}

// SharedBudgetParticipant 共享预算参与者
type SharedBudgetParticipant struct {
	SharedBudgetID uint      `json:"-" gorm:"primaryKey;autoIncrement:false"`
	UserID         uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false;index"`
	User           *User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
	CreatedAt      time.Time `json:"created_at"`
}

func (SharedBudgetParticipant) TableName() string {
	return "shared_budget_participants"
}
