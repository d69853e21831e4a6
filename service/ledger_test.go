package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"spnd/config"
	"spnd/database"
	"spnd/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentNotification struct {
	To   string
	Kind NotificationKind
	Data NotificationData
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, to string, kind NotificationKind, data NotificationData) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{To: to, Kind: kind, Data: data})
	return n.err
}

func (n *recordingNotifier) byKind(kind NotificationKind) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func newTestLedger(t *testing.T) (*LedgerService, *gorm.DB, *recordingNotifier) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	n := &recordingNotifier{}
	return NewLedgerService(db, n, NewMetrics(nil)), db, n
}

// newConcurrentLedger 使用文件数据库与多连接池，事务可真正并发执行
func newConcurrentLedger(t *testing.T) (*LedgerService, *gorm.DB) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         "file:" + filepath.Join(t.TempDir(), "ledger.db") + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)",
		MaxOpenConns: 8,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	return NewLedgerService(db, nil, NewMetrics(nil)), db
}

// beforeBalanceUpdate 在下一次 users 表更新执行前调用 fn 一次，fn 与被拦截的更新处于同一事务
func beforeBalanceUpdate(t *testing.T, db *gorm.DB, fn func(tx *gorm.DB)) {
	t.Helper()
	var once sync.Once
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:interleave", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			once.Do(func() { fn(tx.Session(&gorm.Session{NewDB: true})) })
		}
	}))
}

func participantIDs(b *models.SharedBudget) []uint {
	ids := make([]uint, 0, len(b.Participants))
	for _, p := range b.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

func createUser(t *testing.T, db *gorm.DB, username, email string) models.User {
	t.Helper()
	u := models.User{Username: username, Password: "hashed", AuthType: models.AuthTypeLocal}
	if email != "" {
		u.Email = &email
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, userID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func TestCreditThenDebit(t *testing.T) {
	ledger, db, n := newTestLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")

	credit, err := ledger.Credit(ctx, alice.ID, CreditInput{Amount: dec("100"), Source: "工资", Category: "工资"})
	require.NoError(t, err)
	assertAmount(t, "100", credit.Balance)
	assert.NotZero(t, credit.Income.ID)

	debit, err := ledger.Debit(ctx, alice.ID, DebitInput{Amount: dec("40"), Description: "午饭", Category: models.CategoryFood})
	require.NoError(t, err)
	assertAmount(t, "60", debit.Balance)
	assert.Equal(t, "午饭", debit.Expense.Description)
	assertAmount(t, "40", debit.Expense.Amount)

	balance, err := ledger.Balance(ctx, alice.ID)
	require.NoError(t, err)
	assertAmount(t, "60", balance)

	ledger.WaitNotifications()
	recorded := n.byKind(NotifyExpenseRecorded)
	require.Len(t, recorded, 1)
	assert.Equal(t, "alice@example.com", recorded[0].To)
	assertAmount(t, "60", recorded[0].Data.Balance)
}

func TestDebit_InsufficientFundsLeavesStateUnchanged(t *testing.T) {
	ledger, db, n := newTestLedger(t)
	ctx := context.Background()
	bob := createUser(t, db, "bob", "bob@example.com")

	_, err := ledger.Credit(ctx, bob.ID, CreditInput{Amount: dec("60"), Source: "兼职", Category: "兼职"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := ledger.Debit(ctx, bob.ID, DebitInput{Amount: dec("100"), Description: "电脑", Category: models.CategoryShopping})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	}

	balance, err := ledger.Balance(ctx, bob.ID)
	require.NoError(t, err)
	assertAmount(t, "60", balance)
	assert.Equal(t, int64(0), countRows(t, db, &models.Expense{}, bob.ID))

	ledger.WaitNotifications()
	rejected := n.byKind(NotifyExpenseRejected)
	require.Len(t, rejected, 2)
	assertAmount(t, "100", rejected[0].Data.Amount)
	assertAmount(t, "60", rejected[0].Data.Balance)
	assert.Empty(t, n.byKind(NotifyExpenseRecorded))
}

func TestDebit_ExactBalanceIsAllowed(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	u := createUser(t, db, "exact", "")

	_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("25.5"), Source: "奖金", Category: "奖金"})
	require.NoError(t, err)

	res, err := ledger.Debit(ctx, u.ID, DebitInput{Amount: dec("25.5"), Category: models.CategoryOther})
	require.NoError(t, err)
	assertAmount(t, "0", res.Balance)
}

func TestAmountValidation(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	u := createUser(t, db, "carol", "")

	cases := []decimal.Decimal{dec("0"), dec("-5"), dec("0.0004")}
	for _, amount := range cases {
		_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: amount, Source: "x", Category: "其他"})
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, amount.String())

		_, err = ledger.Debit(ctx, u.ID, DebitInput{Amount: amount, Category: "其他"})
		assert.ErrorAs(t, err, &ve, amount.String())
	}

	_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("10"), Source: " ", Category: "其他"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "source", ve.Field)

	res, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("1.2344"), Source: "x", Category: "其他"})
	require.NoError(t, err)
	assertAmount(t, "1.234", res.Income.Amount)
	assertAmount(t, "1.234", res.Balance)
}

func TestUnknownUser(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Credit(ctx, 999, CreditInput{Amount: dec("1"), Source: "x", Category: "其他"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = ledger.Debit(ctx, 999, DebitInput{Amount: dec("1"), Category: "其他"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = ledger.Balance(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDebit_StoreFailureRollsBack(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	u := createUser(t, db, "dave", "dave@example.com")
	_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("50"), Source: "x", Category: "其他"})
	require.NoError(t, err)

	boom := errors.New("disk full")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_expense", func(tx *gorm.DB) {
		if tx.Statement.Table == "expenses" {
			tx.AddError(boom)
		}
	}))

	_, err = ledger.Debit(ctx, u.ID, DebitInput{Amount: dec("20"), Category: "其他"})
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, boom)

	balance, err := ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assertAmount(t, "50", balance)
	assert.Equal(t, int64(0), countRows(t, db, &models.Expense{}, u.ID))
}

func TestCredit_StoreFailureRollsBack(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	u := createUser(t, db, "ivy", "")
	_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("50"), Source: "x", Category: "其他"})
	require.NoError(t, err)

	boom := errors.New("disk full")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_income", func(tx *gorm.DB) {
		if tx.Statement.Table == "incomes" {
			tx.AddError(boom)
		}
	}))

	_, err = ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("30"), Source: "x", Category: "其他"})
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, boom)

	balance, err := ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assertAmount(t, "50", balance)
	assert.Equal(t, int64(1), countRows(t, db, &models.Income{}, u.ID))
}

func TestContribute_StoreFailureRollsBack(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")
	bob := createUser(t, db, "bob", "bob@example.com")
	_, err := ledger.Credit(ctx, bob.ID, CreditInput{Amount: dec("100"), Source: "x", Category: "其他"})
	require.NoError(t, err)
	budget, err := ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{Name: "房租", ParticipantEmails: []string{"bob@example.com"}})
	require.NoError(t, err)

	boom := errors.New("disk full")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_expense", func(tx *gorm.DB) {
		if tx.Statement.Table == "expenses" {
			tx.AddError(boom)
		}
	}))

	_, err = ledger.Contribute(ctx, bob.ID, budget.ID, dec("40"))
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, boom)

	got, err := ledger.GetSharedBudget(ctx, bob.ID, budget.ID)
	require.NoError(t, err)
	assertAmount(t, "0", got.Amount)
	balance, err := ledger.Balance(ctx, bob.ID)
	require.NoError(t, err)
	assertAmount(t, "100", balance)
	assert.Equal(t, int64(0), countRows(t, db, &models.Expense{}, bob.ID))
}

// spendConcurrently 并发执行 spend，统计成功与余额不足的次数
func spendConcurrently(t *testing.T, workers int, spend func() error) (succeeded, rejected int) {
	t.Helper()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := spend()
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	return succeeded, rejected
}

func TestDebit_ConcurrentSpendsNeverOverdraw(t *testing.T) {
	ledger, db := newConcurrentLedger(t)
	ctx := context.Background()
	u := createUser(t, db, "erin", "")
	_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("100"), Source: "x", Category: "其他"})
	require.NoError(t, err)

	const workers = 8
	succeeded, rejected := spendConcurrently(t, workers, func() error {
		_, err := ledger.Debit(ctx, u.ID, DebitInput{Amount: dec("60"), Category: "其他"})
		return err
	})
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, rejected)

	balance, err := ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assertAmount(t, "40", balance)
	assert.Equal(t, int64(1), countRows(t, db, &models.Expense{}, u.ID))
}

func TestContribute_ConcurrentContributionsNeverOverdraw(t *testing.T) {
	ledger, db := newConcurrentLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")
	createUser(t, db, "bob", "bob@example.com")
	_, err := ledger.Credit(ctx, alice.ID, CreditInput{Amount: dec("100"), Source: "x", Category: "其他"})
	require.NoError(t, err)
	budget, err := ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{Name: "房租", ParticipantEmails: []string{"bob@example.com"}})
	require.NoError(t, err)

	const workers = 8
	succeeded, rejected := spendConcurrently(t, workers, func() error {
		_, err := ledger.Contribute(ctx, alice.ID, budget.ID, dec("60"))
		return err
	})
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, rejected)

	got, err := ledger.GetSharedBudget(ctx, alice.ID, budget.ID)
	require.NoError(t, err)
	assertAmount(t, "60", got.Amount)
	rec, err := ledger.Reconcile(ctx, alice.ID)
	require.NoError(t, err)
	assertAmount(t, "40", rec.Balance)
	assert.True(t, rec.Consistent)
}

// 扣减执行前余额被改为 10，扣减以执行时的余额为准
// 注入的改动与扣减同属一个事务，拒绝后一并回滚
func TestDebit_BalanceChangedBeforeUpdate(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	u := createUser(t, db, "henry", "")
	_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("100"), Source: "x", Category: "其他"})
	require.NoError(t, err)

	beforeBalanceUpdate(t, db, func(tx *gorm.DB) {
		require.NoError(t, tx.Exec("UPDATE users SET total_income = ? WHERE id = ?", "10", u.ID).Error)
	})

	_, err = ledger.Debit(ctx, u.ID, DebitInput{Amount: dec("60"), Category: "其他"})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	balance, err := ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assertAmount(t, "100", balance)
	assert.Equal(t, int64(0), countRows(t, db, &models.Expense{}, u.ID))
}

func TestContribute_BalanceChangedBeforeUpdate(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")
	createUser(t, db, "bob", "bob@example.com")
	_, err := ledger.Credit(ctx, alice.ID, CreditInput{Amount: dec("100"), Source: "x", Category: "其他"})
	require.NoError(t, err)
	budget, err := ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{Name: "礼物", ParticipantEmails: []string{"bob@example.com"}})
	require.NoError(t, err)

	beforeBalanceUpdate(t, db, func(tx *gorm.DB) {
		require.NoError(t, tx.Exec("UPDATE users SET total_income = ? WHERE id = ?", "10", alice.ID).Error)
	})

	_, err = ledger.Contribute(ctx, alice.ID, budget.ID, dec("60"))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	got, err := ledger.GetSharedBudget(ctx, alice.ID, budget.ID)
	require.NoError(t, err)
	assertAmount(t, "0", got.Amount)
	balance, err := ledger.Balance(ctx, alice.ID)
	require.NoError(t, err)
	assertAmount(t, "100", balance)
}

func TestCreateSharedBudget(t *testing.T) {
	ledger, db, n := newTestLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")
	bob := createUser(t, db, "bob", "bob@example.com")

	budget, err := ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{
		Name:              "旅行",
		ParticipantEmails: []string{" BOB@example.com", "bob@example.com"},
	})
	require.NoError(t, err)
	assert.NotZero(t, budget.ID)
	assert.Equal(t, alice.ID, budget.UserID)
	assertAmount(t, "0", budget.Amount)
	assert.Equal(t, []uint{bob.ID}, participantIDs(budget))

	ledger.WaitNotifications()
	invites := n.byKind(NotifySharedBudgetInvite)
	require.Len(t, invites, 1)
	assert.Equal(t, "bob@example.com", invites[0].To)
	assert.Equal(t, "alice", invites[0].Data.AddedBy)
	assert.Equal(t, "旅行", invites[0].Data.BudgetName)
}

func TestCreateSharedBudget_UnknownParticipant(t *testing.T) {
	ledger, db, n := newTestLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")
	createUser(t, db, "bob", "bob@example.com")

	_, err := ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{
		Name:              "聚餐",
		ParticipantEmails: []string{"ghost@example.com", "bob@example.com", "nobody@example.com"},
	})
	var ue *UnknownParticipantError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, []string{"ghost@example.com", "nobody@example.com"}, ue.Emails)

	var count int64
	require.NoError(t, db.Model(&models.SharedBudget{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, db.Model(&models.SharedBudgetParticipant{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	ledger.WaitNotifications()
	assert.Empty(t, n.byKind(NotifySharedBudgetInvite))
}

func TestCreateSharedBudget_Validation(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")

	var ve *ValidationError
	_, err := ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{Name: "x", ParticipantEmails: []string{" "}})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "participants", ve.Field)

	_, err = ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{Name: "", ParticipantEmails: []string{"alice@example.com"}})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	_, err = ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{Name: "x", ParticipantEmails: []string{"alice@example.com"}, Amount: dec("-1")})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
}

func TestContribute(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")
	bob := createUser(t, db, "bob", "bob@example.com")

	_, err := ledger.Credit(ctx, bob.ID, CreditInput{Amount: dec("100"), Source: "工资", Category: "工资"})
	require.NoError(t, err)
	budget, err := ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{
		Name:              "房租",
		ParticipantEmails: []string{"bob@example.com"},
	})
	require.NoError(t, err)

	res, err := ledger.Contribute(ctx, bob.ID, budget.ID, dec("30"))
	require.NoError(t, err)
	assertAmount(t, "70", res.Balance)
	assertAmount(t, "30", res.Budget.Amount)
	assert.Equal(t, models.CategorySharedBudget, res.Expense.Category)
	assert.Equal(t, "房租", res.Expense.Description)
	assert.Equal(t, []uint{bob.ID}, participantIDs(&res.Budget))

	_, err = ledger.Contribute(ctx, bob.ID, budget.ID, dec("80"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	got, err := ledger.GetSharedBudget(ctx, bob.ID, budget.ID)
	require.NoError(t, err)
	assertAmount(t, "30", got.Amount)

	rec, err := ledger.Reconcile(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assertAmount(t, "100", rec.TotalCredits)
	assertAmount(t, "30", rec.TotalDebits)
}

func TestContribute_CreatorAndOutsider(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")
	createUser(t, db, "bob", "bob@example.com")
	carol := createUser(t, db, "carol", "carol@example.com")
	for _, u := range []models.User{alice, carol} {
		_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("100"), Source: "x", Category: "其他"})
		require.NoError(t, err)
	}

	budget, err := ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{
		Name:              "礼物",
		ParticipantEmails: []string{"bob@example.com"},
	})
	require.NoError(t, err)

	// 创建者未列入参与者，仍可出资
	res, err := ledger.Contribute(ctx, alice.ID, budget.ID, dec("10"))
	require.NoError(t, err)
	assertAmount(t, "90", res.Balance)
	assertAmount(t, "10", res.Budget.Amount)
	require.NotNil(t, res.Budget.Creator)
	assert.Equal(t, "alice", res.Budget.Creator.Username)
	require.Len(t, res.Budget.Participants, 1)
	require.NotNil(t, res.Budget.Participants[0].User)
	assert.Equal(t, "bob", res.Budget.Participants[0].User.Username)

	_, err = ledger.Contribute(ctx, carol.ID, budget.ID, dec("10"))
	assert.ErrorIs(t, err, ErrBudgetNotFound)

	_, err = ledger.Contribute(ctx, alice.ID, budget.ID+100, dec("10"))
	assert.ErrorIs(t, err, ErrBudgetNotFound)

	balance, err := ledger.Balance(ctx, carol.ID)
	require.NoError(t, err)
	assertAmount(t, "100", balance)
	got, err := ledger.GetSharedBudget(ctx, alice.ID, budget.ID)
	require.NoError(t, err)
	assertAmount(t, "10", got.Amount)
}

func TestListSharedBudgets(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "alice@example.com")
	bob := createUser(t, db, "bob", "bob@example.com")
	carol := createUser(t, db, "carol", "carol@example.com")

	first, err := ledger.CreateSharedBudget(ctx, alice.ID, CreateBudgetInput{Name: "一", ParticipantEmails: []string{"bob@example.com"}})
	require.NoError(t, err)
	second, err := ledger.CreateSharedBudget(ctx, carol.ID, CreateBudgetInput{Name: "二", ParticipantEmails: []string{"carol@example.com"}})
	require.NoError(t, err)

	aliceBudgets, err := ledger.ListSharedBudgets(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceBudgets, 1)
	assert.Equal(t, first.ID, aliceBudgets[0].ID)
	require.NotNil(t, aliceBudgets[0].Creator)
	assert.Equal(t, "alice", aliceBudgets[0].Creator.Username)
	require.Len(t, aliceBudgets[0].Participants, 1)
	require.NotNil(t, aliceBudgets[0].Participants[0].User)
	assert.Equal(t, "bob", aliceBudgets[0].Participants[0].User.Username)

	bobBudgets, err := ledger.ListSharedBudgets(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobBudgets, 1)

	_, err = ledger.GetSharedBudget(ctx, bob.ID, second.ID)
	assert.ErrorIs(t, err, ErrBudgetNotFound)
}

func TestReconcile_DetectsDrift(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	u := createUser(t, db, "frank", "")
	_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("10.5"), Source: "x", Category: "其他"})
	require.NoError(t, err)
	_, err = ledger.Debit(ctx, u.ID, DebitInput{Amount: dec("0.25"), Category: "其他"})
	require.NoError(t, err)

	rec, err := ledger.Reconcile(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assertAmount(t, "10.25", rec.Expected)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", u.ID).Update("total_income", dec("99")).Error)
	rec, err = ledger.Reconcile(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
}

func TestNotificationFailureDoesNotFailDebit(t *testing.T) {
	ledger, db, n := newTestLedger(t)
	n.err = errors.New("smtp down")
	ctx := context.Background()
	u := createUser(t, db, "gina", "gina@example.com")
	_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("10"), Source: "x", Category: "其他"})
	require.NoError(t, err)

	_, err = ledger.Debit(ctx, u.ID, DebitInput{Amount: dec("5"), Category: "其他"})
	require.NoError(t, err)
	ledger.WaitNotifications()
	assert.Len(t, n.byKind(NotifyExpenseRecorded), 1)
}

func TestLedgerScenarios(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	ctx := context.Background()
	a := createUser(t, db, "user_a", "a@example.com")
	b := createUser(t, db, "user_b", "b@example.com")
	for _, u := range []models.User{a, b} {
		_, err := ledger.Credit(ctx, u.ID, CreditInput{Amount: dec("100"), Source: "工资", Category: "工资"})
		require.NoError(t, err)
	}

	// 收入 50 → 150
	credit, err := ledger.Credit(ctx, a.ID, CreditInput{Amount: dec("50"), Source: "奖金", Category: "奖金"})
	require.NoError(t, err)
	assertAmount(t, "150", credit.Balance)

	// 支出 200 超出余额 → 拒绝
	_, err = ledger.Debit(ctx, a.ID, DebitInput{Amount: dec("200"), Category: models.CategoryShopping})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	balance, err := ledger.Balance(ctx, a.ID)
	require.NoError(t, err)
	assertAmount(t, "150", balance)

	// 共享预算 [B]，B 出资 40
	budget, err := ledger.CreateSharedBudget(ctx, a.ID, CreateBudgetInput{Name: "周末", ParticipantEmails: []string{"b@example.com"}})
	require.NoError(t, err)
	res, err := ledger.Contribute(ctx, b.ID, budget.ID, dec("40"))
	require.NoError(t, err)
	assertAmount(t, "60", res.Balance)
	assertAmount(t, "40", res.Budget.Amount)
	var contributions []models.Expense
	require.NoError(t, db.Where("user_id = ? AND category = ?", b.ID, models.CategorySharedBudget).Find(&contributions).Error)
	require.Len(t, contributions, 1)
	assertAmount(t, "40", contributions[0].Amount)

	// 未注册参与者
	_, err = ledger.CreateSharedBudget(ctx, a.ID, CreateBudgetInput{Name: "x", ParticipantEmails: []string{"nobody@x.com"}})
	var ue *UnknownParticipantError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, []string{"nobody@x.com"}, ue.Emails)
	var budgets int64
	require.NoError(t, db.Model(&models.SharedBudget{}).Count(&budgets).Error)
	assert.Equal(t, int64(1), budgets)

	for _, u := range []models.User{a, b} {
		rec, err := ledger.Reconcile(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, rec.Consistent, u.Username)
	}
}
