package api

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"spnd/middleware"
	"spnd/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出处理器
type ExportHandler struct {
	db *gorm.DB
}

// NewExportHandler 创建导出处理器
func NewExportHandler(db *gorm.DB) *ExportHandler {
	return &ExportHandler{db: db}
}

// exportRange 导出时间范围，未指定时导出全部
type exportRange struct {
	startStr, endStr string
	start, end       time.Time
}

func (r exportRange) label() string {
	if r.startStr == "" && r.endStr == "" {
		return "all"
	}
	return r.startStr + "_" + r.endStr
}

func parseExportRange(c *gin.Context) (exportRange, bool) {
	r := exportRange{startStr: c.Query("start_time"), endStr: c.Query("end_time")}
	var err error
	if r.start, r.end, err = parseDateRange(r.startStr, r.endStr); err != nil {
		BadRequest(c, "日期格式错误，应为: "+dateLayout)
		return r, false
	}
	return r, true
}

func (h *ExportHandler) loadExpenses(c *gin.Context, r exportRange) ([]models.Expense, error) {
	var list []models.Expense
	q := h.db.WithContext(c.Request.Context()).Where("user_id = ?", middleware.GetCurrentUserID(c))
	err := withTimeRange(q, "expense_time", r.start, r.end).Order("expense_time DESC, id DESC").Find(&list).Error
	return list, err
}

func (h *ExportHandler) loadIncomes(c *gin.Context, r exportRange) ([]models.Income, error) {
	var list []models.Income
	q := h.db.WithContext(c.Request.Context()).Where("user_id = ?", middleware.GetCurrentUserID(c))
	err := withTimeRange(q, "income_time", r.start, r.end).Order("income_time DESC, id DESC").Find(&list).Error
	return list, err
}

// ExportCSV 导出收支记录为 CSV
// @Summary 导出收支记录
// @Description 根据时间范围导出支出或收入记录为 CSV 文件，不传时间则导出全部
// @Tags 导出
// @Produce text/csv
// @Security BearerAuth
// @Param type query string false "记录类型 expense / income" default(expense)
// @Param start_time query string false "开始时间 (2024-01-01)"
// @Param end_time query string false "结束时间 (2024-12-31)"
// @Success 200 {file} file "CSV 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/csv [get]
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	kind := c.DefaultQuery("type", "expense")
	if kind != "expense" && kind != "income" {
		BadRequest(c, "type 只能为 expense 或 income")
		return
	}
	r, ok := parseExportRange(c)
	if !ok {
		return
	}

	var (
		header []string
		rows   [][]string
	)
	if kind == "expense" {
		expenses, err := h.loadExpenses(c, r)
		if err != nil {
			InternalError(c, SafeErrorMessage(err, "查询数据失败"))
			return
		}
		header = []string{"ID", "金额", "类别", "描述", "消费时间", "创建时间"}
		for _, e := range expenses {
			rows = append(rows, []string{
				strconv.FormatUint(uint64(e.ID), 10),
				e.Amount.StringFixed(3),
				e.Category,
				e.Description,
				e.ExpenseTime.Format(datetimeLayout),
				e.CreatedAt.Format(datetimeLayout),
			})
		}
	} else {
		incomes, err := h.loadIncomes(c, r)
		if err != nil {
			InternalError(c, SafeErrorMessage(err, "查询数据失败"))
			return
		}
		header = []string{"ID", "金额", "来源", "类别", "收入时间", "创建时间"}
		for _, in := range incomes {
			rows = append(rows, []string{
				strconv.FormatUint(uint64(in.ID), 10),
				in.Amount.StringFixed(3),
				in.Source,
				in.Category,
				in.IncomeTime.Format(datetimeLayout),
				in.CreatedAt.Format(datetimeLayout),
			})
		}
	}

	buf := new(bytes.Buffer)
	// 添加 BOM 以支持 Excel 中文显示
	buf.WriteString("\xEF\xBB\xBF")
	writer := csv.NewWriter(buf)
	if err := writer.Write(header); err != nil {
		InternalError(c, "生成 CSV 失败")
		return
	}
	if err := writer.WriteAll(rows); err != nil {
		InternalError(c, "生成 CSV 失败")
		return
	}

	filename := fmt.Sprintf("%ss_%s.csv", kind, r.label())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportExcel 导出收支记录为 Excel
// @Summary 导出收支记录为 Excel
// @Description 导出包含「支出记录」「收入记录」两个工作表的 xlsx 文件，每个工作表末尾附合计行
// @Tags 导出
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param start_time query string false "开始时间 (2024-01-01)"
// @Param end_time query string false "结束时间 (2024-12-31)"
// @Success 200 {file} file "Excel 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/excel [get]
func (h *ExportHandler) ExportExcel(c *gin.Context) {
	r, ok := parseExportRange(c)
	if !ok {
		return
	}
	expenses, err := h.loadExpenses(c, r)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "查询数据失败"))
		return
	}
	incomes, err := h.loadIncomes(c, r)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "查询数据失败"))
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	styles, err := newSheetStyles(f)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "生成 Excel 失败"))
		return
	}

	expenseSheet := sheetData{
		name:    "支出记录",
		headers: []string{"ID", "金额", "类别", "描述", "消费时间", "创建时间"},
		widths:  []float64{10, 15, 14, 30, 20, 20},
	}
	for _, e := range expenses {
		expenseSheet.rows = append(expenseSheet.rows, []interface{}{
			e.ID, e.Amount.InexactFloat64(), e.Category, e.Description,
			e.ExpenseTime.Format(datetimeLayout), e.CreatedAt.Format(datetimeLayout),
		})
		expenseSheet.total = expenseSheet.total.Add(e.Amount)
	}

	incomeSheet := sheetData{
		name:    "收入记录",
		headers: []string{"ID", "金额", "来源", "类别", "收入时间", "创建时间"},
		widths:  []float64{10, 15, 20, 14, 20, 20},
	}
	for _, in := range incomes {
		incomeSheet.rows = append(incomeSheet.rows, []interface{}{
			in.ID, in.Amount.InexactFloat64(), in.Source, in.Category,
			in.IncomeTime.Format(datetimeLayout), in.CreatedAt.Format(datetimeLayout),
		})
		incomeSheet.total = incomeSheet.total.Add(in.Amount)
	}

	if err := f.SetSheetName("Sheet1", expenseSheet.name); err != nil {
		InternalError(c, SafeErrorMessage(err, "生成 Excel 失败"))
		return
	}
	if _, err := f.NewSheet(incomeSheet.name); err != nil {
		InternalError(c, SafeErrorMessage(err, "生成 Excel 失败"))
		return
	}
	for _, s := range []sheetData{expenseSheet, incomeSheet} {
		if err := s.write(f, styles); err != nil {
			InternalError(c, SafeErrorMessage(err, "生成 Excel 失败"))
			return
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "生成 Excel 失败"))
		return
	}
	filename := fmt.Sprintf("收支记录_%s.xlsx", r.label())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

type sheetStyles struct {
	header, data, summary int
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
	}
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}

	var s sheetStyles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: center,
		Border:    border,
	}); err != nil {
		return s, err
	}
	if s.data, err = f.NewStyle(&excelize.Style{Alignment: center, Border: border}); err != nil {
		return s, err
	}
	s.summary, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		Alignment: center,
		Border:    border,
	})
	return s, err
}

// sheetData 一个工作表的内容，第二列固定为金额
type sheetData struct {
	name    string
	headers []string
	widths  []float64
	rows    [][]interface{}
	total   decimal.Decimal
}

func (s sheetData) write(f *excelize.File, st sheetStyles) error {
	lastCol, err := excelize.ColumnNumberToName(len(s.headers))
	if err != nil {
		return err
	}
	for i, w := range s.widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(s.name, col, col, w); err != nil {
			return err
		}
	}

	if err := f.SetSheetRow(s.name, "A1", &s.headers); err != nil {
		return err
	}
	if err := f.SetCellStyle(s.name, "A1", lastCol+"1", st.header); err != nil {
		return err
	}

	for i, row := range s.rows {
		n := i + 2
		if err := f.SetSheetRow(s.name, fmt.Sprintf("A%d", n), &row); err != nil {
			return err
		}
		if err := f.SetCellStyle(s.name, fmt.Sprintf("A%d", n), fmt.Sprintf("%s%d", lastCol, n), st.data); err != nil {
			return err
		}
	}

	// 合计行
	n := len(s.rows) + 2
	cells := []struct {
		cell  string
		value interface{}
	}{
		{fmt.Sprintf("A%d", n), "合计"},
		{fmt.Sprintf("B%d", n), s.total.Round(3).InexactFloat64()},
		{fmt.Sprintf("C%d", n), fmt.Sprintf("共 %d 条记录", len(s.rows))},
	}
	for _, cv := range cells {
		if err := f.SetCellValue(s.name, cv.cell, cv.value); err != nil {
			return err
		}
	}
	if err := f.MergeCell(s.name, fmt.Sprintf("C%d", n), fmt.Sprintf("%s%d", lastCol, n)); err != nil {
		return err
	}
	return f.SetCellStyle(s.name, fmt.Sprintf("A%d", n), fmt.Sprintf("%s%d", lastCol, n), st.summary)
}
