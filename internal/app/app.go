// Package app はサブコマンドごとの依存関係のワイヤリングと起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hitoshi/lumiskin/internal/access"
	"github.com/hitoshi/lumiskin/internal/analytics"
	"github.com/hitoshi/lumiskin/internal/auth"
	"github.com/hitoshi/lumiskin/internal/blog"
	"github.com/hitoshi/lumiskin/internal/config"
	"github.com/hitoshi/lumiskin/internal/database"
	"github.com/hitoshi/lumiskin/internal/handler"
	"github.com/hitoshi/lumiskin/internal/logger"
	"github.com/hitoshi/lumiskin/internal/metrics"
	"github.com/hitoshi/lumiskin/internal/middleware"
	"github.com/hitoshi/lumiskin/internal/model"
	"github.com/hitoshi/lumiskin/internal/repository"
	"github.com/hitoshi/lumiskin/internal/security"
	"github.com/hitoshi/lumiskin/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envを読み込んでから環境変数で設定を組み立てる
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreateUser:
		return runCreateUser(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// openDatabase はPostgreSQLへ接続し、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// closer は終了時に解放するリソース。
type closer func()

// sessionStore はREDIS_URLが設定されていればRedisキャッシュ付きのセッションリポジトリを返す。
func sessionStore(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.SessionRepository, closer, error) {
	base := repository.NewPostgresSessionRepo(db)
	if cfg.RedisURL == "" {
		return base, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("session cache enabled", slog.Duration("ttl", cfg.SessionCacheTTL))
	cached := repository.NewCachedSessionRepo(base, client, cfg.SessionCacheTTL, slog.Default())
	return cached, func() { client.Close() }, nil
}

// analyticsStore はANALYTICS_STOREに応じたイベントリポジトリを返す。
func analyticsStore(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.AnalyticsEventRepository, closer, error) {
	if cfg.AnalyticsStore != config.AnalyticsStoreClickHouse {
		return repository.NewPostgresAnalyticsRepo(db), func() {}, nil
	}

	conn, err := database.OpenClickHouse(ctx, database.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("analytics events stored in clickhouse", slog.String("addr", cfg.ClickHouseAddr))
	return repository.NewClickHouseAnalyticsRepo(conn), func() { conn.Close() }, nil
}

// newRegistry はGo/プロセスのメトリクスを含むレジストリとCollectorを生成する。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// rateLimiterConfig は設定値（req/min）からレート制限設定を組み立てる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitLogin > 0 {
		rl.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
		rl.LoginBurst = cfg.RateLimitLogin
	}
	return rl
}

// accessConfig は設定値からアクセスポリシーを組み立てる。
func accessConfig(cfg *config.Config) access.Config {
	ac := access.DefaultConfig()
	ac.AdminPrefix = cfg.AdminPrefix
	ac.AuthenticatedPaths = cfg.ProtectedPaths
	return ac
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	authorRepo := repository.NewPostgresAuthorRepo(db)

	sessionRepo, closeSessions, err := sessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	eventRepo, closeEvents, err := analyticsStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeEvents()

	// 3. メトリクス
	reg, collector := newRegistry()

	// 4. 認証・アクセス制御
	tokens := auth.NewTokenIssuer(cfg.SessionSecret)
	resolver := auth.NewResolver(sessionRepo, userRepo, tokens, slog.Default())
	authService := auth.NewService(userRepo, sessionRepo, tokens, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	policy := access.NewPolicy(accessConfig(cfg))

	// 5. ドメインサービスの初期化
	var prober blog.ImageProber
	if cfg.CoverImageProbe {
		prober = security.NewImageProber(security.NewSafeClient(cfg.CoverImageTimeout))
	}
	blogService := blog.NewService(postRepo, categoryRepo, collector, slog.Default())
	authoring := blog.NewAuthorService(postRepo, categoryRepo, authorRepo, security.NewPostSanitizer(), prober)
	dashboard := blog.NewDashboard(postRepo, eventRepo)
	sink := analytics.NewSink(eventRepo, collector)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Resolver:          resolver,
		Policy:            policy,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		SecurityHeaders: securityHeadersConfig(cfg),

		HealthChecker:  db,
		HTTPMetrics:    collector,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		BlogService: blogService,
		Analytics:   sink,

		Authoring: authoring,
		Dashboard: dashboard,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// securityHeadersConfig はHTTPS運用時のみHSTSを有効にする。
func securityHeadersConfig(cfg *config.Config) middleware.SecurityHeadersConfig {
	if !cfg.CookieSecure {
		return middleware.SecurityHeadersConfig{}
	}
	return middleware.SecurityHeadersConfig{HSTSSeconds: 31536000}
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除を行い、/metricsでその結果を公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	reg, collector := newRegistry()

	// 3. クリーンアップジョブの初期化
	job := cleanup.NewSessionCleanupJob(db, slog.Default(), collector)

	// SIGINT/SIGTERMでctxをキャンセルし、ジョブとメトリクスサーバーを併せて停止する
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("worker metrics server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		job.Start(gctx, cfg.SessionCleanupInterval)
		slog.Info("shutting down worker...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// createUserArgs はcreate-userサブコマンドの引数。
type createUserArgs struct {
	Email    string
	Name     string
	Role     model.Role
	Password string
}

// parseCreateUserArgs はcreate-userの引数を解析する。
// パスワードは-passwordが未指定の場合LUMISKIN_PASSWORD環境変数から読む。
func parseCreateUserArgs(args []string) (*createUserArgs, error) {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "login email")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(model.RoleEditor), "admin, editor or user")
	password := fs.String("password", "", "initial password")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid create-user arguments: %w", err)
	}

	parsed, err := model.ParseRole(*role)
	if err != nil {
		return nil, err
	}
	if *email == "" {
		return nil, fmt.Errorf("-email is required")
	}
	pw := *password
	if pw == "" {
		pw = os.Getenv("LUMISKIN_PASSWORD")
	}
	if pw == "" {
		return nil, fmt.Errorf("-password or LUMISKIN_PASSWORD is required")
	}
	n := *name
	if n == "" {
		n = *email
	}
	return &createUserArgs{Email: *email, Name: n, Role: parsed, Password: pw}, nil
}

// runCreateUser は管理画面にログインするユーザーを作成する。
func runCreateUser(cfg *config.Config, args []string) error {
	parsed, err := parseCreateUserArgs(args)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := auth.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		auth.NewTokenIssuer(cfg.SessionSecret),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	user, err := svc.CreateUser(context.Background(), parsed.Email, parsed.Name, parsed.Password, parsed.Role)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user ready", slog.String("user_id", user.ID), slog.String("email", user.Email))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
