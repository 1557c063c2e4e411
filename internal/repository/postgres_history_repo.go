package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/trendscope/internal/model"
)

// PostgresSearchHistoryRepo はPostgreSQLを使用した検索履歴リポジトリ。
// search_historyテーブルは一意制約を持たない追記専用テーブルで、
// 同一の(tenant_id, platform, search_term)が複数行存在しうる。
type PostgresSearchHistoryRepo struct {
	db *sql.DB
}

// NewPostgresSearchHistoryRepo はPostgresSearchHistoryRepoを生成する。
func NewPostgresSearchHistoryRepo(db *sql.DB) *PostgresSearchHistoryRepo {
	return &PostgresSearchHistoryRepo{db: db}
}

// Create は検索履歴エントリを追記する。
func (r *PostgresSearchHistoryRepo) Create(ctx context.Context, entry *model.SearchHistoryEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO search_history (id, tenant_id, user_id, platform, search_term, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.TenantID, entry.UserID, entry.Platform,
		entry.SearchTerm, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("検索履歴の追記に失敗しました: %w", err)
	}
	return nil
}

// ListRecentDistinct はテナントの検索履歴を検索語ごとに最新1件へ集約し、
// 新しい順に返す。DISTINCT ONで検索語ごとの最新行を選び、
// 外側のORDER BYで全体を新しい順に並べ替える。
func (r *PostgresSearchHistoryRepo) ListRecentDistinct(
	ctx context.Context,
	tenantID, platform string,
	limit int,
) ([]*model.SearchHistoryEntry, error) {
	query := `
		SELECT id, tenant_id, user_id, platform, search_term, created_at
		FROM (
			SELECT DISTINCT ON (search_term)
			       id, tenant_id, user_id, platform, search_term, created_at
			FROM search_history
			WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	argIndex := 2

	if platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argIndex)
		args = append(args, platform)
		argIndex++
	}

	query += fmt.Sprintf(`
			ORDER BY search_term, created_at DESC
		) latest
		ORDER BY created_at DESC
		LIMIT $%d`, argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("検索履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.SearchHistoryEntry
	for rows.Next() {
		entry := &model.SearchHistoryEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.UserID,
			&entry.Platform, &entry.SearchTerm, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("検索履歴行の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("検索履歴の走査に失敗しました: %w", err)
	}

	return entries, nil
}

// compile-time interface check
var _ SearchHistoryRepository = (*PostgresSearchHistoryRepo)(nil)
