// Package model はドメインモデルを定義する。
package model

import "time"

// Platform は投稿の取得元プラットフォームを表す。
type Platform string

const (
	// PlatformTikTok はTikTokプラットフォーム。
	PlatformTikTok Platform = "tiktok"
	// PlatformInstagram はInstagramプラットフォーム。
	PlatformInstagram Platform = "instagram"
)

// ParsePlatform は文字列をPlatformに変換する。
// サポート外の値の場合はfalseを返す。
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(s) {
	case PlatformTikTok, PlatformInstagram:
		return Platform(s), true
	}
	return "", false
}

// RawRecord はスクレイピングアクターから取得した生の投稿レコードを表す。
// スキーマはアクターのバージョンやプラットフォームによって変動するため、
// 型のない開いたマップとして扱い、extractパッケージのフォールバック規則
// 経由でのみ読み取る。
type RawRecord map[string]any

// EngagementMetrics は投稿のエンゲージメント数を表す。
// 各カウンターは非負で、取得元に存在しない場合は0となる。
type EngagementMetrics struct {
	PlayCount    int // TikTok: 再生数
	DiggCount    int // TikTok: いいね数
	CommentCount int // 両プラットフォーム: コメント数
	ShareCount   int // 両プラットフォーム: シェア数
	LikesCount   int // Instagram: いいね数
	SavesCount   int // Instagram: 保存数
	ViewsCount   int // Instagram: 再生数
}

// Post は正規化済みの投稿を表す。
// プラットフォームごとのコレクションにpost_idをキーとして一意に保存される。
type Post struct {
	PostID        string
	Platform      Platform
	SearchHashtag string
	OwnerUsername string // Instagramのみ
	Caption       string // Instagramのみ
	PostCreatedAt *time.Time
	Metrics       EngagementMetrics
	RawData       RawRecord
	ScrapedAt     time.Time
}

// Identity は認証コラボレーターから供給される認証済みアイデンティティを表す。
// 取り込みパイプラインと検索履歴の呼び出し元コンテキストとして必須。
type Identity struct {
	UserID      string
	TenantID    string
	Email       string
	Role        string
	CompanyName string
}
