// Package history はテナント単位の検索履歴の記録と参照を提供する。
package history

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/trendscope/internal/model"
	"github.com/hitoshi/trendscope/internal/repository"
)

const (
	// defaultLimit は履歴一覧のデフォルト取得件数。
	defaultLimit = 20
	// maxLimit は履歴一覧の最大取得件数。
	maxLimit = 50
)

// Service は検索履歴のサービス。
// 記録は常に追記であり、既存エントリへのマージは行わない。
// 同一検索語の集約は読み取り側でのみ行う。
type Service struct {
	historyRepo repository.SearchHistoryRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(historyRepo repository.SearchHistoryRepository) *Service {
	return &Service{historyRepo: historyRepo}
}

// Record は検索語をタイムスタンプ付きで追記する。
// 空白のみの検索語は拒否する。プラットフォームは小文字に正規化する。
func (s *Service) Record(
	ctx context.Context,
	ident *model.Identity,
	platform, term string,
) (*model.SearchHistoryEntry, error) {
	if ident == nil {
		return nil, model.NewUnauthorizedError()
	}

	term = strings.TrimSpace(term)
	if term == "" {
		return nil, model.NewEmptySearchTermError()
	}

	entry := &model.SearchHistoryEntry{
		ID:         uuid.New().String(),
		TenantID:   ident.TenantID,
		UserID:     ident.UserID,
		Platform:   strings.ToLower(strings.TrimSpace(platform)),
		SearchTerm: term,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.historyRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// ListRecent は検索語ごとに最新1件へ集約した履歴を新しい順に返す。
// 同一検索語の繰り返しが限られた表示枠から他の検索語を押し出さないよう、
// 重複排除は必須の性質として扱う。platformが空でない場合は絞り込む。
// limitが0以下の場合はデフォルト値、maxLimit超はmaxLimitに丸める。
func (s *Service) ListRecent(
	ctx context.Context,
	ident *model.Identity,
	platform string,
	limit int,
) ([]*model.SearchHistoryEntry, error) {
	if ident == nil {
		return nil, model.NewUnauthorizedError()
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	platform = strings.ToLower(strings.TrimSpace(platform))

	return s.historyRepo.ListRecentDistinct(ctx, ident.TenantID, platform, limit)
}
