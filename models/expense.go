package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense 支出记录模型，创建后不可修改
type Expense struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	UserID      uint            `json:"user_id" gorm:"index;not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(20,3);not null"`
	Category    string          `json:"category" gorm:"size:50;not null;index"`
	Description string          `json:"description" gorm:"size:255"`
	ExpenseTime time.Time       `json:"expense_time" gorm:"not null;index"`
	CreatedAt   time.Time       `json:"created_at"`
	User        User            `json:"-" gorm:"foreignKey:UserID"`
}

// TableName 设置表名
func (Expense) TableName() string {
	return "expenses"
}

// CategorySharedBudget 共享预算出资产生的支出类别
const CategorySharedBudget = "shared budget"

// 默认支出类别
const (
	CategoryFood          = "餐饮"
	CategoryTransport     = "交通"
	CategoryShopping      = "购物"
	CategoryEntertainment = "娱乐"
	CategoryMedical       = "医疗"
	CategoryEducation     = "教育"
	CategoryHousing       = "住房"
	CategoryOther         = "其他"
)

// GetCategories 获取所有默认支出类别
func GetCategories() []string {
	return []string{
		CategoryFood,
		CategoryTransport,
		CategoryShopping,
		CategoryEntertainment,
		CategoryMedical,
		CategoryEducation,
		CategoryHousing,
		CategorySharedBudget,
		CategoryOther,
	}
}
