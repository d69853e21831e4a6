package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInsufficientFunds 余额不足，属于业务拒绝而非故障
	ErrInsufficientFunds = errors.New("余额不足")

	// ErrBudgetNotFound 共享预算不存在或当前用户不是参与者
	// 两种情况统一返回，避免向非参与者暴露预算是否存在
	ErrBudgetNotFound = errors.New("共享预算不存在")

	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("用户不存在")

	// ErrRecordNotFound 记录不存在
	ErrRecordNotFound = errors.New("记录不存在")
)

// ValidationError 输入校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UnknownParticipantError 共享预算参与者邮箱未注册
type UnknownParticipantError struct {
	Emails []string
}

func (e *UnknownParticipantError) Error() string {
	return "以下邮箱尚未注册: " + strings.Join(e.Emails, ", ")
}

// DuplicateKeyError 唯一约束冲突
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return e.Field + " 已存在"
}

// StoreError 存储层故障，对调用方不透明
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeErr 包装存储层错误；业务错误原样返回
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isLedgerError(err) {
		return err
	}
	if dup := TranslateDuplicate(err); dup != nil {
		return dup
	}
	return &StoreError{Op: op, Err: err}
}

func isLedgerError(err error) bool {
	var ve *ValidationError
	var ue *UnknownParticipantError
	var de *DuplicateKeyError
	var se *StoreError
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrBudgetNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.As(err, &ve) ||
		errors.As(err, &ue) ||
		errors.As(err, &de) ||
		errors.As(err, &se)
}

var (
	// MySQL: Error 1062 (23000): Duplicate entry 'a@b.c' for key 'users.idx_users_email'
	mysqlDuplicateKey = regexp.MustCompile(`Duplicate entry .* for key '(?:[a-z_]+\.)?(?:idx_[a-z]+_)?([a-z_]+)'`)
	// SQLite: UNIQUE constraint failed: users.email
	sqliteDuplicateKey = regexp.MustCompile(`UNIQUE constraint failed: [a-z_]+\.([a-z_]+)`)
)

// TranslateDuplicate 将驱动返回的唯一约束错误转换为 DuplicateKeyError，其余返回 nil
func TranslateDuplicate(err error) *DuplicateKeyError {
	if err == nil {
		return nil
	}
	var de *DuplicateKeyError
	if errors.As(err, &de) {
		return de
	}
	msg := err.Error()
	if m := mysqlDuplicateKey.FindStringSubmatch(msg); m != nil {
		return &DuplicateKeyError{Field: m[1]}
	}
	if m := sqliteDuplicateKey.FindStringSubmatch(msg); m != nil {
		return &DuplicateKeyError{Field: m[1]}
	}
	return nil
}
