package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"spnd/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// amountScale 金额保留的小数位数
const amountScale = 3

// LedgerService 账本服务：维护用户余额 total_income 与收支、共享预算记录的一致性
//
// 余额只通过带条件的原子更新修改（UPDATE ... WHERE total_income >= ?），
// 与对应的流水写入处于同一个事务中。通知在提交后异步发送，失败只记录日志。
type LedgerService struct {
	db            *gorm.DB
	notifier      Notifier
	metrics       *Metrics
	now           func() time.Time
	notifyTimeout time.Duration
	wg            sync.WaitGroup
}

// NewLedgerService 创建账本服务
func NewLedgerService(db *gorm.DB, notifier Notifier, metrics *Metrics) *LedgerService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &LedgerService{
		db:            db,
		notifier:      notifier,
		metrics:       metrics,
		now:           time.Now,
		notifyTimeout: 30 * time.Second,
	}
}

// CreditInput 记录收入参数
type CreditInput struct {
	Amount     decimal.Decimal
	Source     string
	Category   string
	IncomeTime time.Time // 为空时取当前时间
}

// CreditResult 记录收入结果
type CreditResult struct {
	Income  models.Income   `json:"income"`
	Balance decimal.Decimal `json:"total_income"`
}

// Credit 记录一笔收入并增加余额
func (s *LedgerService) Credit(ctx context.Context, userID uint, in CreditInput) (res *CreditResult, err error) {
	defer func() { s.metrics.observe("credit", err) }()

	amount, err := normalizeAmount("amount", in.Amount)
	if err != nil {
		return nil, err
	}
	source, err := requireText("source", in.Source, 100)
	if err != nil {
		return nil, err
	}
	category, err := requireText("category", in.Category, 50)
	if err != nil {
		return nil, err
	}

	income := models.Income{
		UserID:     userID,
		Amount:     amount,
		Source:     source,
		Category:   category,
		IncomeTime: s.entryTime(in.IncomeTime),
	}
	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := creditBalance(tx, userID, amount); err != nil {
			return err
		}
		if err := tx.Create(&income).Error; err != nil {
			return err
		}
		return tx.First(&user, userID).Error
	})
	if err != nil {
		return nil, storeErr("记录收入", err)
	}
	return &CreditResult{Income: income, Balance: user.TotalIncome}, nil
}

// DebitInput 记录支出参数
type DebitInput struct {
	Amount      decimal.Decimal
	Description string
	Category    string
	ExpenseTime time.Time // 为空时取当前时间
}

// DebitResult 记录支出结果
type DebitResult struct {
	Expense models.Expense  `json:"expense"`
	Balance decimal.Decimal `json:"total_income"`
}

// Debit 在余额充足时记录一笔支出并扣减余额，否则返回 ErrInsufficientFunds
// 两种结果都会异步发送邮件通知
func (s *LedgerService) Debit(ctx context.Context, userID uint, in DebitInput) (res *DebitResult, err error) {
	defer func() { s.metrics.observe("debit", err) }()

	amount, err := normalizeAmount("amount", in.Amount)
	if err != nil {
		return nil, err
	}
	category, err := requireText("category", in.Category, 50)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if len(description) > 255 {
		return nil, invalid("description", "描述过长")
	}

	expense := models.Expense{
		UserID:      userID,
		Amount:      amount,
		Category:    category,
		Description: description,
		ExpenseTime: s.entryTime(in.ExpenseTime),
	}
	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debitBalance(tx, userID, amount); err != nil {
			return err
		}
		if err := tx.Create(&expense).Error; err != nil {
			return err
		}
		return tx.First(&user, userID).Error
	})
	if errors.Is(err, ErrInsufficientFunds) {
		if u, lookupErr := s.findUser(ctx, userID); lookupErr == nil {
			s.dispatch(u.EmailAddress(), NotifyExpenseRejected, NotificationData{
				Username:    u.Username,
				Amount:      amount,
				Balance:     u.TotalIncome,
				Description: description,
				Category:    category,
			})
		}
		return nil, ErrInsufficientFunds
	}
	if err != nil {
		return nil, storeErr("记录支出", err)
	}

	s.dispatch(user.EmailAddress(), NotifyExpenseRecorded, NotificationData{
		Username:    user.Username,
		Amount:      amount,
		Balance:     user.TotalIncome,
		Description: description,
		Category:    category,
	})
	return &DebitResult{Expense: expense, Balance: user.TotalIncome}, nil
}

// CreateBudgetInput 创建共享预算参数
type CreateBudgetInput struct {
	Name              string
	ParticipantEmails []string
	Amount            decimal.Decimal // 初始金额，默认 0，不从任何人余额中扣除
}

// CreateSharedBudget 创建共享预算
// 所有参与者邮箱必须已注册，否则返回 UnknownParticipantError 且不创建任何记录
func (s *LedgerService) CreateSharedBudget(ctx context.Context, creatorID uint, in CreateBudgetInput) (budget *models.SharedBudget, err error) {
	defer func() { s.metrics.observe("create_shared_budget", err) }()

	name, err := requireText("name", in.Name, 100)
	if err != nil {
		return nil, err
	}
	emails := normalizeEmails(in.ParticipantEmails)
	if len(emails) == 0 {
		return nil, invalid("participants", "至少需要一位参与者")
	}
	amount := in.Amount.Round(amountScale)
	if amount.IsNegative() {
		return nil, invalid("amount", "初始金额不能为负数")
	}

	b := models.SharedBudget{UserID: creatorID, Name: name, Amount: amount}
	var creator models.User
	var participants []models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&creator, creatorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		var found []models.User
		if err := tx.Where("email IN ?", emails).Find(&found).Error; err != nil {
			return err
		}
		byEmail := make(map[string]models.User, len(found))
		for _, u := range found {
			byEmail[strings.ToLower(u.EmailAddress())] = u
		}
		var missing []string
		for _, e := range emails {
			u, ok := byEmail[e]
			if !ok {
				missing = append(missing, e)
				continue
			}
			participants = append(participants, u)
		}
		if len(missing) > 0 {
			return &UnknownParticipantError{Emails: missing}
		}

		if err := tx.Omit(clause.Associations).Create(&b).Error; err != nil {
			return err
		}
		rows := make([]models.SharedBudgetParticipant, 0, len(participants))
		for _, u := range participants {
			rows = append(rows, models.SharedBudgetParticipant{SharedBudgetID: b.ID, UserID: u.ID})
		}
		if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
			return err
		}
		b.Participants = rows
		return nil
	})
	if err != nil {
		return nil, storeErr("创建共享预算", err)
	}

	for i := range participants {
		p := participants[i]
		b.Participants[i].User = &p
		s.dispatch(p.EmailAddress(), NotifySharedBudgetInvite, NotificationData{
			Username:   p.Username,
			BudgetName: b.Name,
			AddedBy:    creator.Username,
		})
	}
	b.Creator = &creator
	return &b, nil
}

// ContributionResult 共享预算出资结果
type ContributionResult struct {
	Budget  models.SharedBudget `json:"budget"`
	Expense models.Expense      `json:"expense"`
	Balance decimal.Decimal     `json:"total_income"`
}

// Contribute 参与者（创建者视为隐含参与者）从自己的余额向共享预算出资
// 增加预算金额、扣减余额、写入 "shared budget" 支出记录在同一事务中完成。
// 事务以写语句开始：预算金额的条件更新同时完成参与者校验并锁定预算行
func (s *LedgerService) Contribute(ctx context.Context, userID, budgetID uint, amountIn decimal.Decimal) (res *ContributionResult, err error) {
	defer func() { s.metrics.observe("contribute", err) }()

	amount, err := normalizeAmount("amount", amountIn)
	if err != nil {
		return nil, err
	}

	var (
		budget  models.SharedBudget
		expense models.Expense
		user    models.User
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SharedBudget{}).
			Where("id = ?", budgetID).
			Where("user_id = ? OR id IN (?)", userID, participantOf(tx, userID)).
			Update("amount", gorm.Expr("ROUND(amount + ?, 3)", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrBudgetNotFound
		}

		if err := debitBalance(tx, userID, amount); err != nil {
			return err
		}
		if err := preloadBudget(tx).First(&budget, budgetID).Error; err != nil {
			return err
		}

		expense = models.Expense{
			UserID:      userID,
			Amount:      amount,
			Category:    models.CategorySharedBudget,
			Description: budget.Name,
			ExpenseTime: s.now(),
		}
		if err := tx.Create(&expense).Error; err != nil {
			return err
		}
		return tx.First(&user, userID).Error
	})
	if err != nil {
		return nil, storeErr("共享预算出资", err)
	}
	return &ContributionResult{Budget: budget, Expense: expense, Balance: user.TotalIncome}, nil
}

// Balance 读取用户当前余额
func (s *LedgerService) Balance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return u.TotalIncome, nil
}

// Reconciliation 余额与流水重算结果
type Reconciliation struct {
	Balance      decimal.Decimal `json:"total_income"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	Expected     decimal.Decimal `json:"expected"`
	Consistent   bool            `json:"consistent"`
}

// Reconcile 根据收支流水重新计算余额并与存储的余额比对
// 共享预算出资以支出记录体现，已包含在 TotalDebits 中
func (s *LedgerService) Reconcile(ctx context.Context, userID uint) (*Reconciliation, error) {
	var r Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		r.Balance = user.TotalIncome

		var err error
		if r.TotalCredits, err = SumAmounts(tx.Model(&models.Income{}).Where("user_id = ?", userID)); err != nil {
			return err
		}
		r.TotalDebits, err = SumAmounts(tx.Model(&models.Expense{}).Where("user_id = ?", userID))
		return err
	})
	if err != nil {
		return nil, storeErr("核对余额", err)
	}
	r.Expected = r.TotalCredits.Sub(r.TotalDebits)
	r.Consistent = r.Expected.Equal(r.Balance)
	return &r, nil
}

// ListSharedBudgets 列出用户创建或参与的共享预算
func (s *LedgerService) ListSharedBudgets(ctx context.Context, userID uint) ([]models.SharedBudget, error) {
	var budgets []models.SharedBudget
	err := s.visibleBudgets(ctx, userID).Order("id DESC").Find(&budgets).Error
	if err != nil {
		return nil, storeErr("查询共享预算", err)
	}
	return budgets, nil
}

// GetSharedBudget 获取用户可见的单个共享预算
func (s *LedgerService) GetSharedBudget(ctx context.Context, userID, budgetID uint) (*models.SharedBudget, error) {
	var budget models.SharedBudget
	err := s.visibleBudgets(ctx, userID).Where("id = ?", budgetID).First(&budget).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBudgetNotFound
	}
	if err != nil {
		return nil, storeErr("查询共享预算", err)
	}
	return &budget, nil
}

// WaitNotifications 等待所有已派发的通知结束
func (s *LedgerService) WaitNotifications() {
	s.wg.Wait()
}

func (s *LedgerService) visibleBudgets(ctx context.Context, userID uint) *gorm.DB {
	db := s.db.WithContext(ctx)
	return preloadBudget(db).Where("user_id = ? OR id IN (?)", userID, participantOf(db, userID))
}

// participantOf 用户显式参与的预算ID子查询
func participantOf(db *gorm.DB, userID uint) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).
		Model(&models.SharedBudgetParticipant{}).
		Select("shared_budget_id").
		Where("user_id = ?", userID)
}

// preloadBudget 预加载创建者与参与者的公开信息
func preloadBudget(db *gorm.DB) *gorm.DB {
	return db.Preload("Creator", selectPublicUser).
		Preload("Participants").
		Preload("Participants.User", selectPublicUser)
}

// selectPublicUser 预加载其他用户时不读取余额等私有字段
func selectPublicUser(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "email", "created_at")
}

func (s *LedgerService) findUser(ctx context.Context, userID uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr("查询用户", err)
	}
	return &u, nil
}

// dispatch 异步发送通知，不阻塞调用方，失败只记录日志
func (s *LedgerService) dispatch(to string, kind NotificationKind, data NotificationData) {
	if to == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("通知发送异常", "kind", kind, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		err := s.notifier.Notify(ctx, to, kind, data)
		s.metrics.observeNotification(kind, err)
		if err != nil {
			slog.Warn("通知发送失败", "kind", kind, "to", to, "error", err)
		}
	}()
}

func (s *LedgerService) entryTime(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// creditBalance 增加余额
func creditBalance(tx *gorm.DB, userID uint, amount decimal.Decimal) error {
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("total_income", gorm.Expr("ROUND(total_income + ?, 3)", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// debitBalance 余额充足时扣减，判断与扣减由同一条 UPDATE 完成
// 未更新任何行时区分用户不存在与余额不足
func debitBalance(tx *gorm.DB, userID uint, amount decimal.Decimal) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND total_income >= ?", userID, amount).
		Update("total_income", gorm.Expr("ROUND(total_income - ?, 3)", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return ErrInsufficientFunds
}

// SumAmounts 汇总查询中的 amount 列
func SumAmounts(q *gorm.DB) (decimal.Decimal, error) {
	var total string
	if err := q.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	if total == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(amountScale), nil
}

func normalizeAmount(field string, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(amountScale)
	if !amount.IsPositive() {
		return decimal.Zero, invalid(field, "金额必须大于 0")
	}
	return amount, nil
}

func requireText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid(field, "不能为空")
	}
	if len([]rune(value)) > max {
		return "", invalid(field, "长度超出限制")
	}
	return value, nil
}

// normalizeEmails 去空白、转小写并去重，保持输入顺序
func normalizeEmails(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
