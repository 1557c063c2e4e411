package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/trendscope/internal/apify"
	"github.com/hitoshi/trendscope/internal/ingest"
	"github.com/hitoshi/trendscope/internal/model"
)

// PostFetcher はワーカー用スクレイピングアクターの実行インターフェース。
// apify.Clientの部分集合として定義する。
type PostFetcher interface {
	FetchWorkerPosts(ctx context.Context, in apify.WorkerInput) ([]model.RawRecord, error)
}

// BatchIngester は取得レコードのバッチ取り込みインターフェース。
// ingest.BatchUpsertServiceの部分集合として定義する。
type BatchIngester interface {
	Ingest(ctx context.Context, platform model.Platform, records []model.RawRecord, keyword string, ident *model.Identity) (*ingest.BatchResult, error)
}

// RunMetrics はアクター実行メトリクスの記録インターフェース。
type RunMetrics interface {
	RecordActorRunSuccess(platform string)
	RecordActorRunFailure(platform string, reason string)
	RecordActorRunLatency(duration time.Duration)
}

// workerIdentity はバックグラウンド実行用のシステムアイデンティティ。
// 取り込みサービスの認証前提条件を満たすために使用する。
var workerIdentity = &model.Identity{
	UserID:   "scrape-worker",
	TenantID: "system",
	Role:     "worker",
}

// startURLsLabel はURL起点スクレイピングの取り込みに使用するキーワードラベル。
// URL経由で取得した投稿には対応する検索語が存在しないため、固定ラベルを付与する。
const startURLsLabel = "start_urls"

// Runner は単一スクレイピングタスクのアクター実行と取り込みを行う。
type Runner struct {
	fetcher  PostFetcher
	ingester BatchIngester
	metrics  RunMetrics
	logger   *slog.Logger
	maxItems int
}

// NewRunner はRunnerの新しいインスタンスを生成する。
// maxItemsが0以下の場合はデフォルト値20を使用する。
func NewRunner(
	fetcher PostFetcher,
	ingester BatchIngester,
	metrics RunMetrics,
	logger *slog.Logger,
	maxItems int,
) *Runner {
	if maxItems <= 0 {
		maxItems = 20
	}
	return &Runner{
		fetcher:  fetcher,
		ingester: ingester,
		metrics:  metrics,
		logger:   logger,
		maxItems: maxItems,
	}
}

// Run はキーワードに対してアクターを同期実行し、結果を取り込む。
// KeywordRunnerServiceインターフェースを実装する。
func (r *Runner) Run(ctx context.Context, platform model.Platform, keyword string) error {
	return r.run(ctx, platform, keyword, apify.WorkerInput{
		Keywords: []string{keyword},
		MaxItems: r.maxItems,
	})
}

// RunStartURLs は設定された開始URLに対してアクターを同期実行し、結果を取り込む。
// URLは呼び出し側でSSRF検証済みであることを前提とする。
func (r *Runner) RunStartURLs(ctx context.Context, platform model.Platform, urls []string) error {
	return r.run(ctx, platform, startURLsLabel, apify.WorkerInput{
		StartURLs: urls,
		MaxItems:  r.maxItems,
	})
}

// run はアクター実行、メトリクス記録、取り込みの共通フロー。
// labelはログと取り込みのキーワードラベルに使用する。
func (r *Runner) run(ctx context.Context, platform model.Platform, label string, in apify.WorkerInput) error {
	start := time.Now()

	records, err := r.fetcher.FetchWorkerPosts(ctx, in)
	duration := time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordActorRunLatency(duration)
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordActorRunFailure(string(platform), "fetch_failed")
		}
		r.logger.Error("アクター実行に失敗しました",
			slog.String("platform", string(platform)),
			slog.String("keyword", label),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return fmt.Errorf("アクター実行に失敗: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordActorRunSuccess(string(platform))
	}

	if len(records) == 0 {
		r.logger.Info("アクターは結果を返しませんでした",
			slog.String("platform", string(platform)),
			slog.String("keyword", label),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return nil
	}

	result, err := r.ingester.Ingest(ctx, platform, records, label, workerIdentity)
	if err != nil {
		r.logger.Error("取り込みに失敗しました",
			slog.String("platform", string(platform)),
			slog.String("keyword", label),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("取り込みに失敗: %w", err)
	}

	r.logger.Info("スクレイピングサイクルが完了しました",
		slog.String("platform", string(platform)),
		slog.String("keyword", label),
		slog.Int("fetched", len(records)),
		slog.Int("saved", result.Saved),
		slog.Int("skipped", result.Skipped),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
