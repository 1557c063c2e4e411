package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/trendscope/internal/middleware"
	"github.com/hitoshi/trendscope/internal/model"
)

// HistoryServiceInterface は検索履歴ハンドラーが必要とするサービスインターフェース。
type HistoryServiceInterface interface {
	// Record は検索語をタイムスタンプ付きで追記する。
	Record(ctx context.Context, ident *model.Identity, platform, term string) (*model.SearchHistoryEntry, error)
	// ListRecent は検索語ごとに最新1件へ集約した履歴を新しい順に返す。
	ListRecent(ctx context.Context, ident *model.Identity, platform string, limit int) ([]*model.SearchHistoryEntry, error)
}

// HistoryMetricsRecorder は検索履歴メトリクスの記録インターフェース。
type HistoryMetricsRecorder interface {
	RecordHistoryRecorded(platform string)
}

// HistoryHandler は検索履歴のHTTPハンドラー。
type HistoryHandler struct {
	service HistoryServiceInterface
	metrics HistoryMetricsRecorder
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(service HistoryServiceInterface, metrics HistoryMetricsRecorder) *HistoryHandler {
	return &HistoryHandler{
		service: service,
		metrics: metrics,
	}
}

// recordHistoryRequest は検索履歴記録リクエストのボディ。
type recordHistoryRequest struct {
	SearchTerm string `json:"search_term"`
	Platform   string `json:"platform"`
}

// historyEntryResponse は検索履歴エントリのAPIレスポンス。
type historyEntryResponse struct {
	ID         string    `json:"id"`
	Platform   string    `json:"platform"`
	SearchTerm string    `json:"search_term"`
	CreatedAt  time.Time `json:"created_at"`
}

// historyListResponse は検索履歴一覧のAPIレスポンス。
type historyListResponse struct {
	History []historyEntryResponse `json:"history"`
	Count   int                    `json:"count"`
}

// RecordHistory は検索履歴の記録を処理する。
// POST /api/v1/history
func (h *HistoryHandler) RecordHistory(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req recordHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	entry, err := h.service.Record(r.Context(), ident, req.Platform, req.SearchTerm)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordHistoryRecorded(entry.Platform)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toHistoryEntryResponse(entry))
}

// ListHistory は検索履歴一覧を返す。
// GET /api/v1/history?platform=&limit=
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := h.service.ListRecent(r.Context(), ident, r.URL.Query().Get("platform"), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := historyListResponse{History: []historyEntryResponse{}}
	for _, entry := range entries {
		resp.History = append(resp.History, toHistoryEntryResponse(entry))
	}
	resp.Count = len(resp.History)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// toHistoryEntryResponse はmodel.SearchHistoryEntryからAPIレスポンスに変換する。
// tenant_id / user_id は露出しない。
func toHistoryEntryResponse(entry *model.SearchHistoryEntry) historyEntryResponse {
	return historyEntryResponse{
		ID:         entry.ID,
		Platform:   entry.Platform,
		SearchTerm: entry.SearchTerm,
		CreatedAt:  entry.CreatedAt,
	}
}
