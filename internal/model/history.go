package model

import "time"

// SearchHistoryEntry はテナント単位の検索履歴エントリを表す。
// 追記専用であり、このパイプラインから更新・削除されることはない。
type SearchHistoryEntry struct {
	ID         string
	TenantID   string
	UserID     string
	Platform   string // 小文字に正規化される
	SearchTerm string
	CreatedAt  time.Time
}
