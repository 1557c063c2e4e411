package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/trendscope/internal/auth"
	"github.com/hitoshi/trendscope/internal/cache"
	"github.com/hitoshi/trendscope/internal/config"
	"github.com/hitoshi/trendscope/internal/database"
	"github.com/hitoshi/trendscope/internal/handler"
	"github.com/hitoshi/trendscope/internal/history"
	"github.com/hitoshi/trendscope/internal/ingest"
	"github.com/hitoshi/trendscope/internal/logger"
	"github.com/hitoshi/trendscope/internal/metrics"
	"github.com/hitoshi/trendscope/internal/middleware"
	"github.com/hitoshi/trendscope/internal/model"
	"github.com/hitoshi/trendscope/internal/repository"
	"github.com/hitoshi/trendscope/internal/security"
	"github.com/hitoshi/trendscope/internal/worker/scrape"

	apifypkg "github.com/hitoshi/trendscope/internal/apify"
)

// maxActorResponseSize はアクターAPIレスポンスの最大サイズ（10MB）。
const maxActorResponseSize = 10 << 20

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	postRepo := repository.NewPostgresPostRepo(db)
	historyRepo := repository.NewPostgresSearchHistoryRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. セキュリティサービスの初期化
	sanitizer := security.NewTextSanitizer()
	ssrfGuard := security.NewSSRFGuard()

	// 5. ドメインサービスの初期化
	ingestService := ingest.NewBatchUpsertService(postRepo, db, sanitizer, collector)
	historyService := history.NewService(historyRepo)

	apifyClient := apifypkg.NewClient(
		ssrfGuard.NewSafeClient(cfg.ApifyTimeout, maxActorResponseSize),
		slog.Default(),
		cfg.ApifyToken, cfg.ApifyBaseURL, cfg.ApifyWaitSeconds,
	)

	// 6. キャッシュの初期化（REDIS_ADDR未設定の場合は無効）
	var postCache cache.PostCacheService
	if cfg.RedisAddr != "" {
		postCache = cache.NewPostCache(cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword), slog.Default())
		slog.Info("redis cache enabled", slog.String("addr", cfg.RedisAddr))
	} else {
		postCache = cache.NoopPostCache{}
	}

	// 7. 認証の初期化
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	// 8. レート制限の初期化（configのreq/min単位をreq/secに変換）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitLiveSearch > 0 {
		rateLimiterCfg.LiveSearchRate = rate.Limit(float64(cfg.RateLimitLiveSearch) / 60.0)
		rateLimiterCfg.LiveSearchBurst = cfg.RateLimitLiveSearch
	}

	// 9. ルーターの構築
	deps := &handler.RouterDeps{
		TokenVerifier:     verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),

		IngestService: ingestService,

		PostReader: postRepo,
		PostCache:  postCache,
		CacheInval: postCache,

		PostFetcher:  apifyClient,
		ActorMetrics: collector,

		HistoryService: historyService,
		HistoryMetrics: collector,

		HealthChecker: db.Ping,

		Logger:         slog.Default(),
		HTTPMetrics:    collector,
		MetricsHandler: metrics.SetupMetricsRoute(registry),
	}

	router := handler.NewRouter(deps)

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ApifyTimeout + 30*time.Second, // ライブ検索はアクター完了まで応答を保留する
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はスクレイピングワーカーモードで起動する。
// DB接続を開き、キーワードスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if len(cfg.ScrapeKeywords) == 0 && len(cfg.ScrapeStartURLs) == 0 {
		return fmt.Errorf("SCRAPE_KEYWORDS and SCRAPE_START_URLS are empty: worker has nothing to do")
	}

	ssrfGuard := security.NewSSRFGuard()

	// 開始URLはアクターへ転送する前にSSRF検証を行い、起動時に失敗させる
	for _, u := range cfg.ScrapeStartURLs {
		if err := ssrfGuard.ValidateURL(u); err != nil {
			return fmt.Errorf("SCRAPE_START_URLS contains an unsafe URL %q: %w", u, err)
		}
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリとサービスの初期化
	postRepo := repository.NewPostgresPostRepo(db)
	sanitizer := security.NewTextSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	ingestService := ingest.NewBatchUpsertService(postRepo, db, sanitizer, collector)

	apifyClient := apifypkg.NewClient(
		ssrfGuard.NewSafeClient(cfg.ApifyTimeout, maxActorResponseSize),
		slog.Default(),
		cfg.ApifyToken, cfg.ApifyBaseURL, cfg.ApifyWaitSeconds,
	)

	// 3. ランナーとスケジューラの初期化
	runner := scrape.NewRunner(
		apifyClient, ingestService, collector,
		slog.Default(), cfg.ApifyResultsPerQuery,
	)
	scheduler := scrape.NewScheduler(
		runner, slog.Default(), model.PlatformTikTok,
		cfg.ScrapeKeywords, cfg.ScrapeStartURLs,
		cfg.ScrapeInterval, cfg.ScrapeMaxConcurrent,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("scrape_interval", cfg.ScrapeInterval),
		slog.Int("keyword_count", len(cfg.ScrapeKeywords)),
		slog.Int("max_concurrent", cfg.ScrapeMaxConcurrent),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
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
