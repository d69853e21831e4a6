package api

import (
	"time"

	"spnd/middleware"
	"spnd/models"
	"spnd/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatisticsHandler 余额与统计处理器
type StatisticsHandler struct {
	db     *gorm.DB
	ledger *service.LedgerService
}

func NewStatisticsHandler(db *gorm.DB, ledger *service.LedgerService) *StatisticsHandler {
	return &StatisticsHandler{db: db, ledger: ledger}
}

// IncomeExpenseSummaryResponse 支出/收入汇总返回
type IncomeExpenseSummaryResponse struct {
	TotalExpense decimal.Decimal `json:"total_expense" swaggertype:"string" example:"123.45"` // 支出总和
	TotalIncome  decimal.Decimal `json:"total_income" swaggertype:"string" example:"5000.00"` // 收入总和
	Net          decimal.Decimal `json:"net" swaggertype:"string" example:"4876.55"`          // 收入减支出
	Categories   []CategoryStat  `json:"categories"`                                          // 支出按类别汇总
}

// CategoryStat 类别汇总
type CategoryStat struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total" swaggertype:"string"`
	Count    int64           `json:"count"`
}

// GetBalance 获取余额与核对结果
// @Summary 获取余额
// @Description 返回当前余额，并根据收支流水重新计算，consistent 表示两者一致
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=service.Reconciliation} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/balance [get]
func (h *StatisticsHandler) GetBalance(c *gin.Context) {
	r, err := h.ledger.Reconcile(c.Request.Context(), middleware.GetCurrentUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, r)
}

// GetIncomeExpenseSummary 获取支出和收入汇总
// @Summary 获取支出/收入汇总
// @Description 按时间范围统计当前用户的支出总和、收入总和及支出类别分布。不传 start_time/end_time 则统计全部时间。
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param start_time query string false "开始时间 (YYYY-MM-DD)，例如 2024-01-01"
// @Param end_time query string false "结束时间 (YYYY-MM-DD)，例如 2024-12-31"
// @Success 200 {object} Response{data=IncomeExpenseSummaryResponse} "获取成功"
// @Failure 400 {object} Response "日期格式错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/statistics/summary [get]
func (h *StatisticsHandler) GetIncomeExpenseSummary(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	start, end, err := parseDateRange(c.Query("start_time"), c.Query("end_time"))
	if err != nil {
		BadRequest(c, "日期格式错误，应为: "+dateLayout)
		return
	}

	db := h.db.WithContext(c.Request.Context())
	expenseQ := func() *gorm.DB {
		return withTimeRange(db.Model(&models.Expense{}).Where("user_id = ?", userID), "expense_time", start, end)
	}
	incomeQ := withTimeRange(db.Model(&models.Income{}).Where("user_id = ?", userID), "income_time", start, end)

	var resp IncomeExpenseSummaryResponse
	if resp.TotalExpense, err = service.SumAmounts(expenseQ()); err != nil {
		InternalError(c, SafeErrorMessage(err, "统计失败"))
		return
	}
	if resp.TotalIncome, err = service.SumAmounts(incomeQ); err != nil {
		InternalError(c, SafeErrorMessage(err, "统计失败"))
		return
	}
	resp.Net = resp.TotalIncome.Sub(resp.TotalExpense)

	var rows []struct {
		Category string
		Total    string
		Count    int64
	}
	if err := expenseQ().
		Select("category, CAST(COALESCE(SUM(amount), 0) AS CHAR) AS total, COUNT(*) AS count").
		Group("category").
		Order("SUM(amount) DESC").
		Scan(&rows).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "统计失败"))
		return
	}
	resp.Categories = make([]CategoryStat, 0, len(rows))
	for _, r := range rows {
		total, err := decimal.NewFromString(r.Total)
		if err != nil {
			InternalError(c, SafeErrorMessage(err, "统计失败"))
			return
		}
		resp.Categories = append(resp.Categories, CategoryStat{Category: r.Category, Total: total.Round(3), Count: r.Count})
	}

	Success(c, resp)
}

func withTimeRange(q *gorm.DB, column string, start, end time.Time) *gorm.DB {
	if !start.IsZero() {
		q = q.Where(column+" >= ?", start)
	}
	if !end.IsZero() {
		q = q.Where(column+" <= ?", end)
	}
	return q
}
