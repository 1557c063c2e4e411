// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/trendscope/internal/model"
)

// PostRepository は正規化済み投稿の永続化インターフェース。
// プラットフォームごとのコレクションにpost_idをキーとして保存する。
type PostRepository interface {
	// Upsert は投稿を条件付きで書き込む。
	// post_idが未存在なら挿入、存在すれば可変フィールド
	// （カウンター、ハッシュタグ、caption/owner、raw_data、scraped_at）を
	// 置き換える。書き込みは単一の原子的なステートメントで行われ、
	// 同一post_idへの並行UPSERTは直列化される。
	Upsert(ctx context.Context, post *model.Post) error

	// ListRecentRaw は保存済み投稿の生ペイロードを新しい順に取得する。
	ListRecentRaw(ctx context.Context, platform model.Platform, limit int) ([]model.RawRecord, error)
}

// SearchHistoryRepository は検索履歴の永続化インターフェース。
// 追記専用であり、更新・削除は提供しない。
type SearchHistoryRepository interface {
	// Create は検索履歴エントリを追記する。
	Create(ctx context.Context, entry *model.SearchHistoryEntry) error

	// ListRecentDistinct はテナントの検索履歴を検索語ごとに最新1件へ
	// 集約し、新しい順に返す。platformが空でない場合は絞り込む。
	ListRecentDistinct(ctx context.Context, tenantID, platform string, limit int) ([]*model.SearchHistoryEntry, error)
}
