// Package auth はJWTベースの認証処理を提供する。
// APIゲートウェイが発行したアクセストークンを検証し、
// リクエスト元のテナント・ユーザー情報を取り出す。
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/trendscope/internal/model"
)

// ErrInvalidToken はトークンが無効または期限切れの場合のエラー。
var ErrInvalidToken = errors.New("トークンが無効または期限切れです")

// TokenVerifierService はアクセストークンの検証機能を提供するインターフェース。
type TokenVerifierService interface {
	// Verify はトークン文字列を検証し、含まれるアイデンティティを返す。
	Verify(tokenString string) (*model.Identity, error)
}

// accessClaims はアクセストークンに含まれるクレーム。
// 発行側(認証サービス)のペイロード形式に合わせている。
type accessClaims struct {
	jwt.RegisteredClaims
	UserID      string `json:"userId"`
	TenantID    string `json:"tenantId"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	CompanyName string `json:"companyName"`
}

type jwtVerifier struct {
	secret []byte
}

// コンパイル時のインターフェース実装チェック
var _ TokenVerifierService = (*jwtVerifier)(nil)

// NewJWTVerifier はHS256署名のトークン検証器を生成する。
func NewJWTVerifier(secret string) *jwtVerifier {
	return &jwtVerifier{secret: []byte(secret)}
}

// Verify はトークンの署名と有効期限を検証し、アイデンティティを返す。
// アルゴリズムはHS256のみ許可する。alg混同攻撃を防ぐため、
// トークンヘッダーの指定をそのまま信用しない。
func (v *jwtVerifier) Verify(tokenString string) (*model.Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("%w: userIdまたはtenantIdがありません", ErrInvalidToken)
	}

	return &model.Identity{
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		Email:       claims.Email,
		Role:        claims.Role,
		CompanyName: claims.CompanyName,
	}, nil
}
