package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/trendscope/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
// プラットフォームごとに別テーブル（tiktok_posts / instagram_posts）を持ち、
// いずれもpost_idの一意制約を重複排除キーとして使用する。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// Upsert は投稿を条件付きで書き込む。
// INSERT ... ON CONFLICT DO UPDATE の単一ステートメントで実行するため、
// 同一post_idへの並行書き込みはPostgreSQL側で直列化され、
// 読み取り後書き込みによる更新消失は発生しない。
// created_at（挿入時メタデータ）は競合時に変更されない。
func (r *PostgresPostRepo) Upsert(ctx context.Context, post *model.Post) error {
	rawJSON, err := json.Marshal(post.RawData)
	if err != nil {
		return fmt.Errorf("raw_dataのJSONエンコードに失敗しました: %w", err)
	}

	switch post.Platform {
	case model.PlatformTikTok:
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO tiktok_posts
			    (post_id, search_hashtag, post_created_at,
			     play_count, digg_count, comment_count, share_count,
			     raw_data, scraped_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (post_id) DO UPDATE SET
			    search_hashtag  = EXCLUDED.search_hashtag,
			    post_created_at = EXCLUDED.post_created_at,
			    play_count      = EXCLUDED.play_count,
			    digg_count      = EXCLUDED.digg_count,
			    comment_count   = EXCLUDED.comment_count,
			    share_count     = EXCLUDED.share_count,
			    raw_data        = EXCLUDED.raw_data,
			    scraped_at      = EXCLUDED.scraped_at`,
			post.PostID, post.SearchHashtag, post.PostCreatedAt,
			post.Metrics.PlayCount, post.Metrics.DiggCount,
			post.Metrics.CommentCount, post.Metrics.ShareCount,
			rawJSON, post.ScrapedAt,
		)
	case model.PlatformInstagram:
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO instagram_posts
			    (post_id, search_hashtag, owner_username, caption, post_created_at,
			     likes_count, comments_count, saves_count, shares_count, views_count,
			     raw_data, scraped_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (post_id) DO UPDATE SET
			    search_hashtag  = EXCLUDED.search_hashtag,
			    owner_username  = EXCLUDED.owner_username,
			    caption         = EXCLUDED.caption,
			    post_created_at = EXCLUDED.post_created_at,
			    likes_count     = EXCLUDED.likes_count,
			    comments_count  = EXCLUDED.comments_count,
			    saves_count     = EXCLUDED.saves_count,
			    shares_count    = EXCLUDED.shares_count,
			    views_count     = EXCLUDED.views_count,
			    raw_data        = EXCLUDED.raw_data,
			    scraped_at      = EXCLUDED.scraped_at`,
			post.PostID, post.SearchHashtag,
			nullString(post.OwnerUsername), nullString(post.Caption),
			post.PostCreatedAt,
			post.Metrics.LikesCount, post.Metrics.CommentCount,
			post.Metrics.SavesCount, post.Metrics.ShareCount,
			post.Metrics.ViewsCount,
			rawJSON, post.ScrapedAt,
		)
	default:
		return fmt.Errorf("サポートされていないプラットフォームです: %s", post.Platform)
	}

	if err != nil {
		return upsertError(err)
	}
	return nil
}

// upsertError はUPSERT失敗のエラーメッセージを整形する。
// PostgreSQL由来のエラーはSQLSTATEと制約名を含め、
// レコード単体の失敗として報告されたときに原因を特定できるようにする。
func upsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Constraint != "" {
			return fmt.Errorf("投稿のUPSERTに失敗しました (sqlstate=%s, constraint=%s): %w",
				pqErr.Code, pqErr.Constraint, err)
		}
		return fmt.Errorf("投稿のUPSERTに失敗しました (sqlstate=%s): %w", pqErr.Code, err)
	}
	return fmt.Errorf("投稿のUPSERTに失敗しました: %w", err)
}

// ListRecentRaw は保存済み投稿の生ペイロードを新しい順に取得する。
// post_created_atがNULLの行は末尾に回す。
func (r *PostgresPostRepo) ListRecentRaw(ctx context.Context, platform model.Platform, limit int) ([]model.RawRecord, error) {
	table, err := postTableName(platform)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(
			`SELECT raw_data FROM %s
			 ORDER BY post_created_at DESC NULLS LAST, scraped_at DESC
			 LIMIT $1`, table),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("保存済み投稿の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []model.RawRecord
	for rows.Next() {
		var rawJSON []byte
		if err := rows.Scan(&rawJSON); err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗しました: %w", err)
		}
		var record model.RawRecord
		if err := json.Unmarshal(rawJSON, &record); err != nil {
			return nil, fmt.Errorf("raw_dataのJSONデコードに失敗しました: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("保存済み投稿の走査に失敗しました: %w", err)
	}

	return records, nil
}

// postTableName はプラットフォームに対応するテーブル名を返す。
// テーブル名はプレースホルダにできないため、既知の値のみを許可する。
func postTableName(platform model.Platform) (string, error) {
	switch platform {
	case model.PlatformTikTok:
		return "tiktok_posts", nil
	case model.PlatformInstagram:
		return "instagram_posts", nil
	}
	return "", fmt.Errorf("サポートされていないプラットフォームです: %s", platform)
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
