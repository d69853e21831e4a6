package api

import (
	"errors"

	"spnd/middleware"
	"spnd/models"
	"spnd/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExpenseHandler 支出处理器
type ExpenseHandler struct {
	db     *gorm.DB
	ledger *service.LedgerService
}

func NewExpenseHandler(db *gorm.DB, ledger *service.LedgerService) *ExpenseHandler {
	return &ExpenseHandler{db: db, ledger: ledger}
}

type CreateExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount" swaggertype:"string" example:"35.50"`
	Category    string          `json:"category" binding:"required,max=50" example:"餐饮"`
	Description string          `json:"description" binding:"max=255" example:"午餐"`
	ExpenseTime string          `json:"expense_time" example:"2024-01-15 12:30:00"` // 为空取当前时间
}

// Create 记录支出
// @Summary 记录支出
// @Description 余额充足时记录支出并扣减余额；余额不足返回 400 (kind=insufficient_funds) 且不写入任何记录。两种结果都会发送邮件通知
// @Tags 支出
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateExpenseRequest true "支出信息"
// @Success 200 {object} Response{data=service.DebitResult} "创建成功"
// @Failure 400 {object} Response "请求参数错误或余额不足"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/expenses [post]
func (h *ExpenseHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	t, err := parseEntryTime(req.ExpenseTime)
	if err != nil {
		BadRequest(c, "时间格式错误，应为: "+datetimeLayout)
		return
	}

	res, err := h.ledger.Debit(c.Request.Context(), userID, service.DebitInput{
		Amount:      req.Amount,
		Description: req.Description,
		Category:    req.Category,
		ExpenseTime: t,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessWithMessage(c, "创建成功", res)
}

// List 获取支出列表
// @Summary 获取支出列表
// @Description 获取当前用户的支出列表，共享预算出资以类别 "shared budget" 出现
// @Tags 支出
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param category query string false "类别筛选"
// @Param keyword query string false "描述关键词"
// @Param start_time query string false "开始时间 (2024-01-01)"
// @Param end_time query string false "结束时间 (2024-12-31)"
// @Success 200 {object} Response{data=PageResponse{list=[]models.Expense}} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/expenses [get]
func (h *ExpenseHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.normalize()

	start, end, err := parseDateRange(req.StartTime, req.EndTime)
	if err != nil {
		BadRequest(c, "日期格式错误，应为: "+dateLayout)
		return
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.Expense{}).Where("user_id = ?", userID)
	if req.Category != "" {
		query = query.Where("category = ?", req.Category)
	}
	if req.Keyword != "" {
		query = query.Where("description LIKE ? ESCAPE '!'", likeContains(req.Keyword))
	}
	query = withTimeRange(query, "expense_time", start, end)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	list := []models.Expense{}
	if err := query.Order("expense_time DESC, id DESC").Offset(req.offset()).Limit(req.PageSize).Find(&list).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	Success(c, PageResponse{Total: total, Page: req.Page, PageSize: req.PageSize, List: list})
}

// Get 获取单条支出
// @Summary 获取单条支出
// @Tags 支出
// @Produce json
// @Security BearerAuth
// @Param id path int true "支出ID"
// @Success 200 {object} Response{data=models.Expense} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}
	var e models.Expense
	err := h.db.WithContext(c.Request.Context()).Where("id = ? AND user_id = ?", id, userID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		Fail(c, service.ErrRecordNotFound)
		return
	}
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	Success(c, e)
}
