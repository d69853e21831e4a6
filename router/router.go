package router

import (
	"net/http"

	"spnd/api"
	"spnd/config"
	_ "spnd/docs"
	"spnd/middleware"
	"spnd/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Deps 路由依赖，由 main 组装后注入
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Ledger   *service.LedgerService
	JWT      *middleware.JWT
	Google   *service.GoogleClient
	Gatherer prometheus.Gatherer // 为 nil 时不注册 /metrics
}

// SetupRouter 设置路由
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// CORS 中间件
	r.Use(CORSMiddleware())

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 路由组
	v1 := r.Group("/api/v1")
	{
		// 认证相关路由（无需登录）
		authHandler := api.NewAuthHandler(d.DB, d.JWT, d.Google)
		rl := d.Config.RateLimit
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", middleware.LoginRateLimit(rl.LoginAttempts, rl.LoginWindow()), authHandler.Login)

			auth.POST("/google", authHandler.GoogleLogin)
			auth.GET("/google/url", authHandler.GoogleAuthURL)
			auth.GET("/google/callback", authHandler.GoogleCallback)
		}

		// 收支类别（无需登录）
		v1.GET("/categories", api.NewCategoryHandler(d.DB).List)

		// 需要 JWT 认证的路由
		authorized := v1.Group("")
		authorized.Use(d.JWT.Auth())
		{
			// 用户相关
			authorized.GET("/auth/profile", authHandler.GetProfile)
			authorized.PUT("/auth/password", authHandler.ChangePassword)

			// 收入记录，只增不改
			incomeHandler := api.NewIncomeHandler(d.DB, d.Ledger)
			incomes := authorized.Group("/incomes")
			{
				incomes.POST("", incomeHandler.Create)
				incomes.GET("", incomeHandler.List)
				incomes.GET("/:id", incomeHandler.Get)
			}

			// 支出记录，只增不改
			expenseHandler := api.NewExpenseHandler(d.DB, d.Ledger)
			expenses := authorized.Group("/expenses")
			{
				expenses.POST("", expenseHandler.Create)
				expenses.GET("", expenseHandler.List)
				expenses.GET("/:id", expenseHandler.Get)
			}

			budgetHandler := api.NewSharedBudgetHandler(d.Ledger)
			budgets := authorized.Group("/shared-budgets")
			{
				budgets.POST("", budgetHandler.Create)
				budgets.GET("", budgetHandler.List)
				budgets.GET("/:id", budgetHandler.Get)
				budgets.POST("/:id/contributions", budgetHandler.Contribute)
			}

			statsHandler := api.NewStatisticsHandler(d.DB, d.Ledger)
			authorized.GET("/balance", statsHandler.GetBalance)
			authorized.GET("/statistics/summary", statsHandler.GetIncomeExpenseSummary)

			// 导出相关
			exportHandler := api.NewExportHandler(d.DB)
			export := authorized.Group("/export")
			{
				export.GET("/csv", exportHandler.ExportCSV)
				export.GET("/excel", exportHandler.ExportExcel)
			}
		}
	}

	// 健康检查
	r.GET("/health", healthHandler(d.DB))

	return r
}

// healthHandler 数据库可用时返回 ok
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": api.SafeErrorMessage(err, "数据库不可用")})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// CORSMiddleware CORS 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+middleware.RequestIDHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", middleware.RequestIDHeader+", Content-Disposition")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
