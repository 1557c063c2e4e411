package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/trendscope/internal/ingest"
	"github.com/hitoshi/trendscope/internal/middleware"
	"github.com/hitoshi/trendscope/internal/model"
)

// IngestServiceInterface は取り込みハンドラーが必要とするサービスインターフェース。
type IngestServiceInterface interface {
	// Ingest は生レコードのバッチを取り込み、集計結果を返す。
	Ingest(ctx context.Context, platform model.Platform, records []model.RawRecord, keyword string, ident *model.Identity) (*ingest.BatchResult, error)
}

// IngestHandler は投稿バッチ取り込みのHTTPハンドラー。
type IngestHandler struct {
	service IngestServiceInterface
	cache   CacheInvalidator
}

// CacheInvalidator は取り込み成功後のキャッシュ無効化インターフェース。
// cache.PostCacheServiceの部分集合として定義する。
type CacheInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string, platform model.Platform)
}

// NewIngestHandler はIngestHandlerを生成する。
func NewIngestHandler(service IngestServiceInterface, cache CacheInvalidator) *IngestHandler {
	return &IngestHandler{
		service: service,
		cache:   cache,
	}
}

// ingestRequest はバッチ取り込みリクエストのボディ。
type ingestRequest struct {
	Posts         []model.RawRecord `json:"posts"`
	SearchHashtag string            `json:"search_hashtag"`
}

// ingestResponse はバッチ取り込み結果のAPIレスポンス。
type ingestResponse struct {
	Saved         int                  `json:"saved"`
	Skipped       int                  `json:"skipped"`
	Total         int                  `json:"total"`
	SearchHashtag string               `json:"search_hashtag"`
	Errors        []ingest.RecordError `json:"errors,omitempty"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// IngestBatch は投稿バッチの取り込みを処理する。
// POST /api/v1/posts/:platform
func (h *IngestHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
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

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	result, err := h.service.Ingest(r.Context(), platform, req.Posts, req.SearchHashtag, ident)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if result.Saved > 0 && h.cache != nil {
		h.cache.InvalidateTenant(r.Context(), ident.TenantID, platform)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ingestResponse{
		Saved:         result.Saved,
		Skipped:       result.Skipped,
		Total:         result.Total,
		SearchHashtag: req.SearchHashtag,
		Errors:        result.Errors,
	})
}

// --- ヘルパー関数 ---

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeEmptyBatch, model.ErrCodeEmptyKeyword,
		model.ErrCodeInvalidPlatform, model.ErrCodeEmptySearchTerm:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeActorRunFailed, model.ErrCodeDatasetMissing:
		return http.StatusBadGateway
	case model.ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
