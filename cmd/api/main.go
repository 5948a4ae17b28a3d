// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/dashboard-gate/internal/audit"
	"github.com/yourusername/dashboard-gate/internal/auth"
	"github.com/yourusername/dashboard-gate/internal/config"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// run の defer（Redis と Asynq の終了処理）を済ませてから異常終了する
	if err := run(cfg, log.Default()); err != nil {
		log.Fatalf("%v", err)
	}
}

// run はサーバーを起動し、シグナルを受けるか起動に失敗するまでブロックします。
func run(cfg *config.Config, logger *log.Logger) error {

	if cfg.UsesFallbackSecret() {
		logger.Printf("WARNING: JWT_SECRET is not set; using the insecure development fallback secret")
	}
	if cfg.DashboardPasswordHash == "" {
		logger.Printf("WARNING: DASHBOARD_PASSWORD_HASH is not set; every login will be rejected")
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		auth.CSRFHeader, // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{auth.CSRFHeader}
	router.Use(cors.New(corsConfig))

	// Redis を使う部品（ログイン制限・監査ログ）の初期化
	deps, err := setupRedisDeps(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to set up redis: %w", err)
	}
	defer deps.Close()

	authManager := auth.NewManager(
		auth.NewVerifier(cfg.DashboardPasswordHash, logger),
		auth.NewCodec(cfg.SigningSecret()),
		auth.SessionCookieOptions(cfg.IsProduction()),
		auth.WithLimiter(deps.limiter),
		auth.WithRecorder(deps.recorder),
		auth.WithLogger(logger),
	)

	// ルーティングの設定
	setupRoutes(router, authManager, deps.events)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("Starting API server on %s (mode: %s, production: %v)", srv.Addr, cfg.GinMode, cfg.IsProduction())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("server shutdown: %v", err)
	}
	return nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "dashboard-gate",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, authManager *auth.Manager, events audit.EventReader) {
	// 誰でも叩けるヘルスチェック
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout",
				authManager.RequireSession(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
			authRoutes.GET("/session", authManager.RequireSession(), authManager.Session)
		}

		dashboard := api.Group("/dashboard")
		dashboard.Use(authManager.RequireSession(), authManager.VerifyCSRF())
		{
			dashboard.GET("/logins", audit.RecentHandler(events))
		}
	}
}
