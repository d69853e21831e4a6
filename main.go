package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"spnd/config"
	"spnd/database"
	"spnd/logging"
	"spnd/middleware"
	"spnd/router"
	"spnd/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// @title Spnd 记账 API
// @version 1.0
// @description 个人记账后端：收入、支出、共享预算，余额与流水始终一致
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const version = "1.0.0"

var (
	configFile  string
	port        string
	showVersion bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "外部配置文件路径（可选）")
	flag.StringVar(&configFile, "c", "", "外部配置文件路径（简写）")
	flag.StringVar(&port, "port", "", "监听端口，如: 8080 或 :8080")
	flag.StringVar(&port, "p", "", "监听端口（简写）")
	flag.BoolVar(&showVersion, "version", false, "显示版本信息")
	flag.BoolVar(&showVersion, "v", false, "显示版本信息（简写）")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Println("spnd v" + version)
		return
	}

	if err := run(); err != nil {
		slog.Error("服务异常退出", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 加载配置（内置配置 + 可选的外部配置覆盖）
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level)

	// 命令行参数覆盖端口配置
	if port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Server.Port = port
		slog.Info("命令行指定端口", "port", port)
	}
	gin.SetMode(cfg.Server.Mode)
	config.PrintConfig(cfg)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("数据库初始化失败: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Warn("关闭数据库失败", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(reg)

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.Email.Enabled {
		notifier = service.NewEmailService(cfg.Email)
	} else {
		slog.Info("邮件通知未启用")
	}
	ledger := service.NewLedgerService(db, notifier, metrics)

	baseURL := strings.TrimRight(cfg.Server.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost" + cfg.Server.Port
	}
	google := service.NewGoogleClient(cfg.Google, baseURL+"/api/v1/auth/google/callback")

	r := router.SetupRouter(router.Deps{
		Config:   cfg,
		DB:       db,
		Ledger:   ledger,
		JWT:      middleware.NewJWT(cfg.JWT),
		Google:   google,
		Gatherer: reg,
	})

	srv := &http.Server{Addr: cfg.Server.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Spnd 已启动",
			"api", baseURL+"/api/v1/",
			"swagger", baseURL+"/swagger/index.html",
			"metrics", baseURL+"/metrics",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("服务器启动失败: %w", err)
		}
	case <-ctx.Done():
		slog.Info("收到退出信号，正在关闭服务")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP 服务关闭超时", "error", err)
	}
	// 等待已提交操作的邮件通知发送完毕，再关闭数据库
	ledger.WaitNotifications()
	slog.Info("服务已停止")
	return nil
}
