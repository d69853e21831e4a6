package api

import (
	"spnd/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CategoryHandler 收支类别
type CategoryHandler struct {
	db *gorm.DB
}

func NewCategoryHandler(db *gorm.DB) *CategoryHandler {
	return &CategoryHandler{db: db}
}

// CategoriesResponse 类别列表
type CategoriesResponse struct {
	Expense []models.ExpenseCategory `json:"expense"`
	Income  []models.IncomeCategory  `json:"income"`
}

// List 获取收支类别
// @Summary 获取收支类别
// @Description 返回预置的支出与收入类别（名称、排序、颜色），记账时类别可为任意非空文本
// @Tags 类别
// @Produce json
// @Success 200 {object} Response{data=CategoriesResponse} "获取成功"
// @Router /api/v1/categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	resp := CategoriesResponse{
		Expense: []models.ExpenseCategory{},
		Income:  []models.IncomeCategory{},
	}
	if err := db.Order("sort ASC, id ASC").Find(&resp.Expense).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	if err := db.Order("sort ASC, id ASC").Find(&resp.Income).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	Success(c, resp)
}
