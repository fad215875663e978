package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lumiskin/internal/middleware"
	"github.com/hitoshi/lumiskin/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Resolver          middleware.IdentityResolver
	Policy            middleware.AccessDecider
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	SecurityHeaders   middleware.SecurityHeadersConfig

	// 運用
	HealthChecker  HealthChecker
	HTTPMetrics    middleware.HTTPMetrics // nilの場合は記録しない
	MetricsHandler http.Handler           // nilの場合は/metricsを公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ブログ
	BlogService BlogServiceInterface
	Analytics   AnalyticsRecorder

	// 管理
	Authoring AuthoringServiceInterface
	Dashboard DashboardInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → Access(Identity判定 + アクセスポリシー)
//
// /health と /metrics はAccessの外に配置する。それ以外は未登録パスも含めてAccessを通る。
// /api/admin/* はさらに RequireRoles → RateLimit(General) → CSRF を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- アプリケーションルート ---
	// ルート未登録のパスを含む全リクエストにアクセスポリシーを適用する
	r.Mount("/", newAppRouter(deps))

	return r
}

// newAppRouter はIdentity判定とアクセスポリシーを先頭に置いたアプリケーションルーターを返す。
// NotFoundとMethodNotAllowedもこのミドルウェアの内側で処理される。
func newAppRouter(deps *RouterDeps) http.Handler {
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	blogHandler := NewBlogHandler(deps.BlogService)
	analyticsHandler := NewAnalyticsHandler(deps.Analytics)
	adminHandler := NewAdminHandler(deps.Authoring, deps.Dashboard)
	csrf := middleware.NewCSRFMiddleware(deps.CSRF)

	r := chi.NewRouter()
	r.Use(middleware.NewAccessMiddleware(deps.Resolver, deps.Policy))

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// 認証
	r.Route("/api/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.With(csrf).Post("/logout", authHandler.Logout)
		r.With(csrf).Post("/logout-all", authHandler.LogoutAll)
		r.Get("/me", authHandler.Me)
	})

	// 公開ブログ
	r.Route("/api/blog", func(r chi.Router) {
		r.Get("/categories", blogHandler.ListCategories)
		r.Get("/posts", blogHandler.ListPosts)
		r.Get("/posts/{slug}", blogHandler.GetPost)
		// イベント受信はレート制限もCSRF検証も行わない
		r.Post("/posts/{slug}/analytics", analyticsHandler.RecordEvent)
	})

	// 管理画面（未認証・権限不足はアクセスポリシーがリダイレクトする）
	r.Get("/admin", adminHandler.Dashboard)
	r.Get("/admin/*", adminHandler.Dashboard)

	// 管理API（リダイレクトせずJSONで401/403を返す）
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireRoles(model.RoleAdmin, model.RoleEditor))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(csrf)

		r.Get("/dashboard", adminHandler.Dashboard)

		r.Route("/posts", func(r chi.Router) {
			r.Post("/", adminHandler.CreatePost)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", adminHandler.GetPost)
				r.Put("/", adminHandler.UpdatePost)
				r.Post("/publish", adminHandler.PublishPost)
				r.Post("/unpublish", adminHandler.UnpublishPost)
				r.With(middleware.RequireRoles(model.RoleAdmin)).Delete("/", adminHandler.DeletePost)
			})
		})
	})

	return r
}
