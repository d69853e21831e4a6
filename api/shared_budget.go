package api

import (
	"time"

	"spnd/middleware"
	"spnd/models"
	"spnd/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// SharedBudgetHandler 共享预算处理器
type SharedBudgetHandler struct {
	ledger *service.LedgerService
}

func NewSharedBudgetHandler(ledger *service.LedgerService) *SharedBudgetHandler {
	return &SharedBudgetHandler{ledger: ledger}
}

// CreateSharedBudgetRequest 创建共享预算请求
type CreateSharedBudgetRequest struct {
	Name         string          `json:"name" binding:"required,max=100" example:"周末旅行"`
	Participants []string        `json:"participants" binding:"required,min=1,dive,required" example:"bob@example.com"`
	Amount       decimal.Decimal `json:"amount" swaggertype:"string" example:"0"` // 初始金额，可省略
}

// ContributeRequest 出资请求
type ContributeRequest struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"40"`
}

// BudgetUser 共享预算中展示的用户信息
type BudgetUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// SharedBudgetResponse 共享预算返回
type SharedBudgetResponse struct {
	ID           uint            `json:"id"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount" swaggertype:"string" example:"40"`
	Creator      BudgetUser      `json:"creator"`
	Participants []BudgetUser    `json:"participants"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ContributionResponse 出资返回
type ContributionResponse struct {
	Budget  SharedBudgetResponse `json:"budget"`
	Expense models.Expense       `json:"expense"`
	Balance decimal.Decimal      `json:"total_income" swaggertype:"string" example:"60"`
}

func toBudgetUser(u *models.User, id uint) BudgetUser {
	if u == nil {
		return BudgetUser{ID: id}
	}
	return BudgetUser{ID: u.ID, Username: u.Username, Email: u.EmailAddress()}
}

func toSharedBudgetResponse(b *models.SharedBudget) SharedBudgetResponse {
	resp := SharedBudgetResponse{
		ID:           b.ID,
		Name:         b.Name,
		Amount:       b.Amount,
		Creator:      toBudgetUser(b.Creator, b.UserID),
		Participants: make([]BudgetUser, 0, len(b.Participants)),
		CreatedAt:    b.CreatedAt,
	}
	for _, p := range b.Participants {
		resp.Participants = append(resp.Participants, toBudgetUser(p.User, p.UserID))
	}
	return resp
}

// Create 创建共享预算
// @Summary 创建共享预算
// @Description 按邮箱指定参与者创建共享预算。任一邮箱未注册时返回 400 (kind=unknown_participant)，data.emails 列出这些邮箱，且不创建任何记录
// @Tags 共享预算
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateSharedBudgetRequest true "预算信息"
// @Success 200 {object} Response{data=SharedBudgetResponse} "创建成功"
// @Failure 400 {object} Response "请求参数错误或参与者不存在"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/shared-budgets [post]
func (h *SharedBudgetHandler) Create(c *gin.Context) {
	var req CreateSharedBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	b, err := h.ledger.CreateSharedBudget(c.Request.Context(), middleware.GetCurrentUserID(c), service.CreateBudgetInput{
		Name:              req.Name,
		ParticipantEmails: req.Participants,
		Amount:            req.Amount,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessWithMessage(c, "创建成功", toSharedBudgetResponse(b))
}

// List 获取共享预算列表
// @Summary 获取共享预算列表
// @Description 列出当前用户创建或参与的共享预算
// @Tags 共享预算
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]SharedBudgetResponse} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/shared-budgets [get]
func (h *SharedBudgetHandler) List(c *gin.Context) {
	budgets, err := h.ledger.ListSharedBudgets(c.Request.Context(), middleware.GetCurrentUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	list := make([]SharedBudgetResponse, 0, len(budgets))
	for i := range budgets {
		list = append(list, toSharedBudgetResponse(&budgets[i]))
	}
	Success(c, list)
}

// Get 获取共享预算详情
// @Summary 获取共享预算详情
// @Tags 共享预算
// @Produce json
// @Security BearerAuth
// @Param id path int true "预算ID"
// @Success 200 {object} Response{data=SharedBudgetResponse} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "预算不存在或无权查看"
// @Router /api/v1/shared-budgets/{id} [get]
func (h *SharedBudgetHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	b, err := h.ledger.GetSharedBudget(c.Request.Context(), middleware.GetCurrentUserID(c), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, toSharedBudgetResponse(b))
}

// Contribute 向共享预算出资
// @Summary 向共享预算出资
// @Description 参与者（含创建者）从自己的余额中出资，同时记录一笔类别为 "shared budget" 的支出。非参与者返回 404，余额不足返回 400 (kind=insufficient_funds)
// @Tags 共享预算
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "预算ID"
// @Param request body ContributeRequest true "出资金额"
// @Success 200 {object} Response{data=ContributionResponse} "出资成功"
// @Failure 400 {object} Response "请求参数错误或余额不足"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "预算不存在或不是参与者"
// @Router /api/v1/shared-budgets/{id}/contributions [post]
func (h *SharedBudgetHandler) Contribute(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ContributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	userID := middleware.GetCurrentUserID(c)
	res, err := h.ledger.Contribute(c.Request.Context(), userID, id, req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessWithMessage(c, "出资成功", ContributionResponse{
		Budget:  toSharedBudgetResponse(&res.Budget),
		Expense: res.Expense,
		Balance: res.Balance,
	})
}
