package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/trendscope/internal/middleware"
	"github.com/hitoshi/trendscope/internal/model"
)

const (
	// defaultPostsLimit は保存済み投稿一覧のデフォルト取得件数。
	defaultPostsLimit = 20
	// maxPostsLimit は保存済み投稿一覧の最大取得件数。
	maxPostsLimit = 500
)

// PostReaderInterface は保存済み投稿の参照インターフェース。
// repository.PostRepositoryの部分集合として定義する。
type PostReaderInterface interface {
	ListRecentRaw(ctx context.Context, platform model.Platform, limit int) ([]model.RawRecord, error)
}

// PostCacheInterface は投稿一覧キャッシュの参照・格納インターフェース。
type PostCacheInterface interface {
	GetPosts(ctx context.Context, tenantID string, platform model.Platform, limit int) ([]model.RawRecord, bool)
	SetPosts(ctx context.Context, tenantID string, platform model.Platform, limit int, posts []model.RawRecord)
}

// PostsHandler は保存済み投稿参照のHTTPハンドラー。
type PostsHandler struct {
	reader PostReaderInterface
	cache  PostCacheInterface
}

// NewPostsHandler はPostsHandlerを生成する。
func NewPostsHandler(reader PostReaderInterface, cache PostCacheInterface) *PostsHandler {
	return &PostsHandler{
		reader: reader,
		cache:  cache,
	}
}

// postsResponse は保存済み投稿一覧のAPIレスポンス。
type postsResponse struct {
	Posts []model.RawRecord `json:"posts"`
	Count int               `json:"count"`
}

// ListPosts は保存済み投稿の生ペイロードを新しい順に返す。
// GET /api/v1/posts/:platform
func (h *PostsHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
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

	limit := defaultPostsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPostsLimit {
		limit = maxPostsLimit
	}

	if h.cache != nil {
		if cached, hit := h.cache.GetPosts(r.Context(), ident.TenantID, platform, limit); hit {
			writePostsResponse(w, cached)
			return
		}
	}

	records, err := h.reader.ListRecentRaw(r.Context(), platform, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.SetPosts(r.Context(), ident.TenantID, platform, limit, records)
	}

	writePostsResponse(w, records)
}

func writePostsResponse(w http.ResponseWriter, records []model.RawRecord) {
	if records == nil {
		records = []model.RawRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(postsResponse{
		Posts: records,
		Count: len(records),
	})
}
