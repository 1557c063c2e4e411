package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/trendscope/internal/middleware"
	"github.com/hitoshi/trendscope/internal/model"
)

// UserHandler は認証済みユーザー情報のHTTPハンドラー。
type UserHandler struct{}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// meResponse は認証済みユーザー情報のAPIレスポンス。
// トークンの検証済みクレームをそのまま返す。
type meResponse struct {
	UserID      string `json:"user_id"`
	TenantID    string `json:"tenant_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	CompanyName string `json:"company_name"`
}

// Me は認証済みユーザーの情報を返す。
// GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meResponse{
		UserID:      ident.UserID,
		TenantID:    ident.TenantID,
		Email:       ident.Email,
		Role:        ident.Role,
		CompanyName: ident.CompanyName,
	})
}
