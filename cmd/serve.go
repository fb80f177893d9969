package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/controller"
	"github.com/vibast-solutions/ms-go-transactions/app/locker"
	"github.com/vibast-solutions/ms-go-transactions/app/provider"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
	"github.com/vibast-solutions/ms-go-transactions/app/service"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
	"github.com/vibast-solutions/ms-go-transactions/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for the transactions service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type application struct {
	transactionService *service.TransactionService
	webhookService     *service.WebhookService
	coordinator        *service.Coordinator
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, app, cleanup := mustCreateApp()
	defer cleanup()

	transactionController := controller.NewTransactionController(app.transactionService)
	e := setupHTTPServer(transactionController)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(transactionController *controller.TransactionController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", transactionController.Health)

	transactions := e.Group("/transactions", requireMerchantID())
	transactions.POST("", transactionController.ProcessTransaction)
	transactions.GET("", transactionController.ListTransactions)
	transactions.GET("/:id", transactionController.GetTransaction)
	transactions.GET("/:id/events", transactionController.ListTransactionEvents)
	transactions.POST("/:id/capture", transactionController.CaptureTransaction)
	transactions.POST("/:id/refund", transactionController.RefundTransaction)
	transactions.POST("/:id/void", transactionController.VoidTransaction)
	transactions.POST("/:id/dispute", transactionController.DisputeTransaction)

	return e
}

func requireMerchantID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			merchantID := strings.TrimSpace(ctx.Request().Header.Get(controller.HeaderMerchantID))
			if merchantID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{
					Error: "x-merchant-id header is required",
					Code:  "validation_error",
				})
			}
			return next(ctx)
		}
	}
}

func mustCreateApp() (*config.Config, *application, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping redis")
	}

	store := repository.NewSQLStore(db)
	flightLocker := locker.NewRedisLocker(rdb, cfg.Redis.KeyPrefix)
	providerRegistry := provider.NewRegistry(provider.NewSandboxProvider())

	coordinator := service.NewCoordinator(store, flightLocker, cfg.Idempotency)
	transactionService := service.NewTransactionService(store, coordinator, providerRegistry, cfg.Transactions)
	webhookService := service.NewWebhookService(store, cfg.Webhooks)

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, &application{
		transactionService: transactionService,
		webhookService:     webhookService,
		coordinator:        coordinator,
	}, cleanup
}
