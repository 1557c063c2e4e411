package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/trendscope/internal/middleware"
	"github.com/hitoshi/trendscope/internal/model"
)

const (
	// defaultIntentMaxItems はライブ検索のデフォルト取得件数。
	defaultIntentMaxItems = 20
	// maxIntentMaxItems はライブ検索の最大取得件数。
	// アクター実行コストが件数に比例するため上限を設ける。
	maxIntentMaxItems = 50
)

// PostFetcherInterface はライブ検索が必要とする上流フェッチインターフェース。
// apify.Clientが満たす。
type PostFetcherInterface interface {
	FetchPosts(ctx context.Context, platform model.Platform, query string, maxItems int) ([]model.RawRecord, error)
}

// HistoryRecorderInterface は検索履歴記録のインターフェース。
// history.Serviceの部分集合として定義する。
type HistoryRecorderInterface interface {
	Record(ctx context.Context, ident *model.Identity, platform, term string) (*model.SearchHistoryEntry, error)
}

// ActorMetricsRecorder はアクター実行メトリクスの記録インターフェース。
type ActorMetricsRecorder interface {
	RecordActorRunSuccess(platform string)
	RecordActorRunFailure(platform string, reason string)
	RecordActorRunLatency(duration time.Duration)
}

// IntentHandler はライブ検索（アクター実行 + 取り込み）のHTTPハンドラー。
type IntentHandler struct {
	fetcher PostFetcherInterface
	ingest  IngestServiceInterface
	history HistoryRecorderInterface
	metrics ActorMetricsRecorder
	cache   CacheInvalidator
}

// NewIntentHandler はIntentHandlerを生成する。
func NewIntentHandler(
	fetcher PostFetcherInterface,
	ingest IngestServiceInterface,
	history HistoryRecorderInterface,
	metrics ActorMetricsRecorder,
	cache CacheInvalidator,
) *IntentHandler {
	return &IntentHandler{
		fetcher: fetcher,
		ingest:  ingest,
		history: history,
		metrics: metrics,
		cache:   cache,
	}
}

// intentResponse はライブ検索結果のAPIレスポンス。
// 取得した生ペイロードと取り込みの集計を返す。
type intentResponse struct {
	Query   string            `json:"query"`
	Posts   []model.RawRecord `json:"posts"`
	Count   int               `json:"count"`
	Saved   int               `json:"saved"`
	Skipped int               `json:"skipped"`
}

// Search はライブ検索を処理する。
// スクレイピングアクターを同期実行し、結果をそのまま取り込んでから返す。
// GET /api/v1/intent/:platform?query=
func (h *IntentHandler) Search(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	platform, ok := model.ParsePlatform(chi.URLParam(r, "platform"))
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPlatformError(chi.URLParam(r, "platform")))
		return
	}

	// 空白のみのクエリで有償のアクター実行に進まないよう、トリム後に検証する
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewEmptySearchTermError())
		return
	}

	maxItems := defaultIntentMaxItems
	if v := r.URL.Query().Get("max_items"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxItems = n
		}
	}
	if maxItems > maxIntentMaxItems {
		maxItems = maxIntentMaxItems
	}

	// 検索履歴は取り込み結果に関わらず記録する（検索の意図自体が履歴）
	if _, err := h.history.Record(r.Context(), ident, string(platform), query); err != nil {
		slog.Warn("検索履歴の記録に失敗しました",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
	}

	start := time.Now()
	records, err := h.fetcher.FetchPosts(r.Context(), platform, query, maxItems)
	if h.metrics != nil {
		h.metrics.RecordActorRunLatency(time.Since(start))
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordActorRunFailure(string(platform), "fetch_failed")
		}
		handleServiceError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordActorRunSuccess(string(platform))
	}

	// アクターが0件を返した場合は取り込みをスキップして空の結果を返す
	if len(records) == 0 {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(intentResponse{
			Query: query,
			Posts: []model.RawRecord{},
		})
		return
	}

	result, err := h.ingest.Ingest(r.Context(), platform, records, query, ident)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if result.Saved > 0 && h.cache != nil {
		h.cache.InvalidateTenant(r.Context(), ident.TenantID, platform)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intentResponse{
		Query:   query,
		Posts:   records,
		Count:   len(records),
		Saved:   result.Saved,
		Skipped: result.Skipped,
	})
}
