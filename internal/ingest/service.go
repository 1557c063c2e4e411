// Package ingest は投稿バッチの取り込みパイプラインを提供する。
// 1件ごとの抽出・識別子解決・冪等UPSERTを逐次実行し、
// レコード単体の失敗をバッチ全体から隔離する。
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/trendscope/internal/extract"
	"github.com/hitoshi/trendscope/internal/model"
	"github.com/hitoshi/trendscope/internal/repository"
)

// TextSanitizerService はスクレイピング由来のテキストのサニタイズインターフェース。
type TextSanitizerService interface {
	Sanitize(raw string) string
}

// StorageHealthChecker はストレージバックエンド全体の死活確認インターフェース。
// *sql.DBがそのまま満たす。
type StorageHealthChecker interface {
	PingContext(ctx context.Context) error
}

// MetricsRecorder は取り込みメトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordPostSaved(platform string)
	RecordPostSkipped(platform string, reason string)
}

// RecordError はレコード単体の書き込み失敗を表す。
type RecordError struct {
	PostID string `json:"post_id"`
	Error  string `json:"error"`
}

// BatchResult は1回の取り込み呼び出しの集計結果を表す。
// Saved + Skipped == Total == 入力レコード数 が常に成り立つ。
type BatchResult struct {
	Saved   int
	Skipped int
	Total   int
	Errors  []RecordError
}

// BatchUpsertService は投稿バッチの取り込みエンジン。
// 各レコードは前のレコードの書き込みが完了・失敗・スキップのいずれかで
// 確定してから評価される（レコード内フィールドの部分適用は発生しない）。
type BatchUpsertService struct {
	postRepo  repository.PostRepository
	health    StorageHealthChecker
	extractor *extract.Extractor
	sanitizer TextSanitizerService
	metrics   MetricsRecorder
}

// NewBatchUpsertService はBatchUpsertServiceの新しいインスタンスを生成する。
func NewBatchUpsertService(
	postRepo repository.PostRepository,
	health StorageHealthChecker,
	sanitizer TextSanitizerService,
	metrics MetricsRecorder,
) *BatchUpsertService {
	return &BatchUpsertService{
		postRepo:  postRepo,
		health:    health,
		extractor: extract.NewExtractor(),
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// Ingest は生レコードのバッチを取り込み、集計結果を返す。
//
// 事前条件（違反はバッチ全体に対する致命的エラー）:
//   - identが解決済みであること
//   - recordsが空でないこと（空入力は0件成功ではなく呼び出し元の誤り）
//   - keywordがトリム後に空でないこと
//   - ストレージバックエンドが到達可能であること
//
// レコード単体の失敗（識別子欠落、書き込みエラー）はスキップとして計上され、
// 後続レコードの処理は継続される。
func (s *BatchUpsertService) Ingest(
	ctx context.Context,
	platform model.Platform,
	records []model.RawRecord,
	keyword string,
	ident *model.Identity,
) (*BatchResult, error) {
	if ident == nil {
		return nil, model.NewUnauthorizedError()
	}
	if len(records) == 0 {
		return nil, model.NewEmptyBatchError()
	}

	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, model.NewEmptyKeywordError()
	}

	// ストレージバックエンド全体の喪失はレコード単体のエラーと区別し、
	// 1件も試行せずに単一のエラーとして報告する
	if err := s.health.PingContext(ctx); err != nil {
		slog.Error("ストレージバックエンドに到達できません",
			"platform", string(platform),
			"error", err,
		)
		return nil, model.NewStorageUnavailableError()
	}

	result := &BatchResult{Total: len(records)}
	now := time.Now().UTC()

	for _, raw := range records {
		post, err := s.extractor.Extract(platform, raw)
		if err != nil {
			if errors.Is(err, extract.ErrNoIdentity) {
				// 識別子の欠落は書き込みを試行せずスキップする。
				// エラーリストには載せない（書き込み試行ではないため）。
				result.Skipped++
				s.recordSkipped(platform, "no_identity")
				continue
			}
			result.Skipped++
			result.Errors = append(result.Errors, RecordError{Error: err.Error()})
			s.recordSkipped(platform, "extract_failed")
			continue
		}

		post.SearchHashtag = keyword
		post.ScrapedAt = now
		post.Caption = s.sanitizer.Sanitize(post.Caption)
		post.OwnerUsername = s.sanitizer.Sanitize(post.OwnerUsername)

		if err := s.postRepo.Upsert(ctx, post); err != nil {
			slog.Error("投稿のUPSERTでエラー",
				"platform", string(platform),
				"post_id", post.PostID,
				"error", err,
			)
			result.Skipped++
			result.Errors = append(result.Errors, RecordError{
				PostID: post.PostID,
				Error:  err.Error(),
			})
			s.recordSkipped(platform, "storage_error")
			continue
		}

		result.Saved++
		if s.metrics != nil {
			s.metrics.RecordPostSaved(string(platform))
		}
	}

	slog.Info("バッチ取り込み完了",
		"platform", string(platform),
		"keyword", keyword,
		"tenant_id", ident.TenantID,
		"saved", result.Saved,
		"skipped", result.Skipped,
		"total", result.Total,
	)

	return result, nil
}

// recordSkipped はスキップメトリクスを記録する。
func (s *BatchUpsertService) recordSkipped(platform model.Platform, reason string) {
	if s.metrics != nil {
		s.metrics.RecordPostSkipped(string(platform), reason)
	}
}
