package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/trendscope/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 取り込み
	IngestService IngestServiceInterface

	// 保存済み投稿
	PostReader PostReaderInterface
	PostCache  PostCacheInterface
	CacheInval CacheInvalidator

	// ライブ検索
	PostFetcher  PostFetcherInterface
	ActorMetrics ActorMetricsRecorder

	// 検索履歴
	HistoryService HistoryServiceInterface
	HistoryMetrics HistoryMetricsRecorder

	// ヘルスチェック（/health用）
	HealthChecker func() error

	// 観測（nilの場合は無効）
	Logger         *slog.Logger
	HTTPMetrics    middleware.HTTPStatusRecorder
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → HTTPMetrics
//	→ AuthMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// LoggingとHTTPMetricsは依存が渡された場合のみ有効になる。
// /health と /metrics は認証グループの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// panic回復とセキュリティヘッダーを最上位に適用（全ルートに効く）
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}

	ingestHandler := NewIngestHandler(deps.IngestService, deps.CacheInval)
	postsHandler := NewPostsHandler(deps.PostReader, deps.PostCache)
	intentHandler := NewIntentHandler(deps.PostFetcher, deps.IngestService, deps.HistoryService, deps.ActorMetrics, deps.CacheInval)
	historyHandler := NewHistoryHandler(deps.HistoryService, deps.HistoryMetrics)
	userHandler := NewUserHandler()

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/v1", func(r chi.Router) {
			// 投稿の取り込みと参照
			r.Route("/posts/{platform}", func(r chi.Router) {
				r.Post("/", ingestHandler.IngestBatch)
				r.Get("/", postsHandler.ListPosts)
			})

			// ライブ検索（アクター実行コストが高いため専用レート制限を追加）
			r.With(deps.RateLimiter.LiveSearchMiddleware()).
				Get("/intent/{platform}", intentHandler.Search)

			// 検索履歴
			r.Route("/history", func(r chi.Router) {
				r.Post("/", historyHandler.RecordHistory)
				r.Get("/", historyHandler.ListHistory)
			})

			// ユーザー情報
			r.Get("/users/me", userHandler.Me)
		})
	})

	return r
}
