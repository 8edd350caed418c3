package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/restockwatch/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	AdminToken        string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 監視エンジン
	Engine MonitoringEngine
	// EngineContext はAPIから起動した定期実行の寿命。アプリケーション終了時にキャンセルされる。
	EngineContext context.Context

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → AdminAuth → RateLimit
//
// /health と /metrics は管理者認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	monitoringHandler := NewMonitoringHandler(deps.Engine, deps.EngineContext, logger)

	// --- 管理者認証が必要なルート ---
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.NewAdminAuthMiddleware(deps.AdminToken))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/monitoring", func(r chi.Router) {
			r.Get("/status", monitoringHandler.GetStatus)
			r.Post("/start", monitoringHandler.StartMonitoring)
			r.Post("/stop", monitoringHandler.StopMonitoring)
			r.Post("/scan", monitoringHandler.ManualScan)
			r.Post("/reset-stats", monitoringHandler.ResetStats)
		})

		r.Get("/scan-logs", monitoringHandler.ListScanLogs)
		r.Delete("/scan-logs", monitoringHandler.ClearScanLogs)
	})

	return r
}
