// Package cache は保存済み投稿一覧の短期キャッシュを提供する。
// Redisをバックエンドとし、取得系エンドポイントのDB負荷を下げる。
// キャッシュはベストエフォートであり、Redis障害時は常にDBへフォールバックする。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/trendscope/internal/model"
)

// defaultTTL は投稿一覧キャッシュの有効期間。
// 取り込み直後の鮮度を優先し、短めに設定する。
const defaultTTL = 60 * time.Second

// PostCacheService は投稿一覧キャッシュのインターフェース。
type PostCacheService interface {
	// GetPosts はキャッシュされた投稿一覧を返す。ミス時は(nil, false)を返す。
	GetPosts(ctx context.Context, tenantID string, platform model.Platform, limit int) ([]model.RawRecord, bool)
	// SetPosts は投稿一覧をキャッシュに格納する。
	SetPosts(ctx context.Context, tenantID string, platform model.Platform, limit int, posts []model.RawRecord)
	// InvalidateTenant はテナント配下のプラットフォームのキャッシュを無効化する。
	InvalidateTenant(ctx context.Context, tenantID string, platform model.Platform)
}

// redisCmd はキャッシュが利用するRedisコマンドの部分集合。
// *redis.Clientが満たす。テストではモックに差し替える。
type redisCmd interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type postCache struct {
	rdb    redisCmd
	logger *slog.Logger
	ttl    time.Duration
}

// コンパイル時のインターフェース実装チェック
var _ PostCacheService = (*postCache)(nil)

// NewRedisClient はキャッシュ用のRedisクライアントを生成する。
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})
}

// NewPostCache は新しいPostCacheを生成する。
func NewPostCache(rdb redisCmd, logger *slog.Logger) *postCache {
	return &postCache{
		rdb:    rdb,
		logger: logger,
		ttl:    defaultTTL,
	}
}

// cacheKey はテナント・プラットフォーム・件数ごとのキャッシュキーを組み立てる。
func cacheKey(tenantID string, platform model.Platform, limit int) string {
	return fmt.Sprintf("posts:%s:%s:%d", tenantID, platform, limit)
}

func (c *postCache) GetPosts(ctx context.Context, tenantID string, platform model.Platform, limit int) ([]model.RawRecord, bool) {
	data, err := c.rdb.Get(ctx, cacheKey(tenantID, platform, limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed",
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	var posts []model.RawRecord
	if err := json.Unmarshal(data, &posts); err != nil {
		// 壊れたエントリはミス扱いにして上書きさせる
		c.logger.Warn("cache entry corrupted",
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	return posts, true
}

func (c *postCache) SetPosts(ctx context.Context, tenantID string, platform model.Platform, limit int, posts []model.RawRecord) {
	data, err := json.Marshal(posts)
	if err != nil {
		c.logger.Warn("cache marshal failed",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := c.rdb.Set(ctx, cacheKey(tenantID, platform, limit), data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed",
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateTenant は既知の件数バリエーションのキーを削除する。
// キーは件数込みで構築されるため、代表的な件数のみ対象とする。
func (c *postCache) InvalidateTenant(ctx context.Context, tenantID string, platform model.Platform) {
	keys := []string{
		cacheKey(tenantID, platform, 20),
		cacheKey(tenantID, platform, 50),
		cacheKey(tenantID, platform, 100),
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidate failed",
			slog.String("error", err.Error()),
		)
	}
}

// NoopPostCache はキャッシュ無効時に使うダミー実装。
// REDIS_ADDRが未設定の環境で利用する。
type NoopPostCache struct{}

var _ PostCacheService = (*NoopPostCache)(nil)

func (NoopPostCache) GetPosts(ctx context.Context, tenantID string, platform model.Platform, limit int) ([]model.RawRecord, bool) {
	return nil, false
}

func (NoopPostCache) SetPosts(ctx context.Context, tenantID string, platform model.Platform, limit int, posts []model.RawRecord) {
}

func (NoopPostCache) InvalidateTenant(ctx context.Context, tenantID string, platform model.Platform) {}
