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

// IncomeHandler 收入处理器
type IncomeHandler struct {
	db     *gorm.DB
	ledger *service.LedgerService
}

func NewIncomeHandler(db *gorm.DB, ledger *service.LedgerService) *IncomeHandler {
	return &IncomeHandler{db: db, ledger: ledger}
}

type CreateIncomeRequest struct {
	Amount     decimal.Decimal `json:"amount" swaggertype:"string" example:"5000.00"`
	Source     string          `json:"source" binding:"required,max=100" example:"公司"`
	Category   string          `json:"category" binding:"required,max=50" example:"工资"`
	IncomeTime string          `json:"income_time" example:"2024-01-15 09:00:00"` // 为空取当前时间
}

// Create 记录收入
// @Summary 记录收入
// @Description 记录一条收入并增加余额，返回收入记录与最新余额
// @Tags 收入
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateIncomeRequest true "收入信息"
// @Success 200 {object} Response{data=service.CreditResult} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/incomes [post]
func (h *IncomeHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	var req CreateIncomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	t, err := parseEntryTime(req.IncomeTime)
	if err != nil {
		BadRequest(c, "时间格式错误，应为: "+datetimeLayout)
		return
	}

	res, err := h.ledger.Credit(c.Request.Context(), userID, service.CreditInput{
		Amount:     req.Amount,
		Source:     req.Source,
		Category:   req.Category,
		IncomeTime: t,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessWithMessage(c, "创建成功", res)
}

// List 获取收入列表
// @Summary 获取收入列表
// @Description 获取当前用户的收入列表，支持分页与筛选
// @Tags 收入
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param category query string false "类别筛选"
// @Param keyword query string false "来源关键词"
// @Param start_time query string false "开始时间 (2024-01-01)"
// @Param end_time query string false "结束时间 (2024-12-31)"
// @Success 200 {object} Response{data=PageResponse{list=[]models.Income}} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/incomes [get]
func (h *IncomeHandler) List(c *gin.Context) {
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

	query := h.db.WithContext(c.Request.Context()).Model(&models.Income{}).Where("user_id = ?", userID)
	if req.Category != "" {
		query = query.Where("category = ?", req.Category)
	}
	if req.Keyword != "" {
		query = query.Where("source LIKE ? ESCAPE '!'", likeContains(req.Keyword))
	}
	query = withTimeRange(query, "income_time", start, end)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	list := []models.Income{}
	if err := query.Order("income_time DESC, id DESC").Offset(req.offset()).Limit(req.PageSize).Find(&list).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	Success(c, PageResponse{Total: total, Page: req.Page, PageSize: req.PageSize, List: list})
}

// Get 获取单条收入
// @Summary 获取单条收入
// @Description 根据ID获取收入详情
// @Tags 收入
// @Produce json
// @Security BearerAuth
// @Param id path int true "收入ID"
// @Success 200 {object} Response{data=models.Income} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/incomes/{id} [get]
func (h *IncomeHandler) Get(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in models.Income
	err := h.db.WithContext(c.Request.Context()).Where("id = ? AND user_id = ?", id, userID).First(&in).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		Fail(c, service.ErrRecordNotFound)
		return
	}
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	Success(c, in)
}
