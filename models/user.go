package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// AuthTypeLocal 用户名密码注册
	AuthTypeLocal = "local"
	// AuthTypeGoogle Google 登录创建
	AuthTypeGoogle = "google"
)

// User 用户模型
// TotalIncome 为当前余额，只能通过 service.LedgerService 的条件更新修改
type User struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Username    string          `json:"username" gorm:"uniqueIndex;size:52;not null"`
	Password    string          `json:"-" gorm:"size:255;not null;default:''"` // Google 用户为空
	Email       *string         `json:"email,omitempty" gorm:"uniqueIndex;size:100"`
	GoogleID    *string         `json:"-" gorm:"uniqueIndex;size:64"`
	AuthType    string          `json:"auth_type" gorm:"size:20;not null;default:local"`
	TotalIncome decimal.Decimal `json:"total_income" gorm:"type:decimal(20,3);not null;default:0"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `json:"-" gorm:"index"`
}

// TableName 设置表名
func (User) TableName() string {
	return "users"
}

// EmailAddress 返回邮箱，未设置时为空串
func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// HasPassword 是否可用密码登录
func (u *User) HasPassword() bool {
	return u.Password != ""
}
