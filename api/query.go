package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"

	maxPage     = 1_000_000
	maxPageSize = 100
)

// ListRequest 列表查询公共参数
type ListRequest struct {
	Page      int    `form:"page" example:"1"`
	PageSize  int    `form:"page_size" example:"10"`
	Category  string `form:"category" example:"餐饮"`
	Keyword   string `form:"keyword" example:"午餐"`
	StartTime string `form:"start_time" example:"2024-01-01"`
	EndTime   string `form:"end_time" example:"2024-12-31"`
}

func (r *ListRequest) normalize() {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.Page > maxPage {
		r.Page = maxPage
	}
	if r.PageSize <= 0 {
		r.PageSize = 10
	}
	if r.PageSize > maxPageSize {
		r.PageSize = maxPageSize
	}
}

func (r *ListRequest) offset() int {
	return (r.Page - 1) * r.PageSize
}

// parseID 解析路径参数 id
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		BadRequest(c, "无效的ID")
		return 0, false
	}
	return uint(id), true
}

// parseDateRange 解析日期范围，结束日期包含当天；空串返回零值
func parseDateRange(startStr, endStr string) (start, end time.Time, err error) {
	if startStr != "" {
		if start, err = time.ParseInLocation(dateLayout, startStr, time.Local); err != nil {
			return
		}
	}
	if endStr != "" {
		if end, err = time.ParseInLocation(dateLayout, endStr, time.Local); err != nil {
			return
		}
		end = end.Add(24*time.Hour - time.Second)
	}
	return
}

// parseEntryTime 解析记账时间，空串返回零值（由账本取当前时间）
func parseEntryTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(datetimeLayout, s, time.Local)
}
