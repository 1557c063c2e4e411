// Package scrape はキーワードのバックグラウンドスクレイピング処理を提供する。
// スケジューラ、ランナー、バックオフ戦略を含む。
package scrape

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/trendscope/internal/model"
)

// KeywordRunnerService はスクレイピングタスク単位の実行インターフェース。
type KeywordRunnerService interface {
	// Run は指定キーワードのアクター実行と取り込みを行う。
	Run(ctx context.Context, platform model.Platform, keyword string) error
	// RunStartURLs は設定された開始URLのアクター実行と取り込みを行う。
	RunStartURLs(ctx context.Context, platform model.Platform, urls []string) error
}

// Scheduler はキーワードスクレイピングのスケジューリングと並列制御を行う。
// 設定された間隔のティッカーで実行対象キーワードを選び、
// semaphoreパターンで最大並列数を制御しながらランナーを実行する。
type Scheduler struct {
	runner         KeywordRunnerService
	logger         *slog.Logger
	platform       model.Platform
	interval       time.Duration
	maxConcurrency int
	startURLs      []string

	mu     sync.Mutex
	states map[string]*KeywordState
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値3を使用する。
// startURLsが設定されている場合、URL起点スクレイピングを1タスクとして
// キーワードと同じ間隔・バックオフ規則でスケジュールする。
func NewScheduler(
	runner KeywordRunnerService,
	logger *slog.Logger,
	platform model.Platform,
	keywords []string,
	startURLs []string,
	interval time.Duration,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	states := make(map[string]*KeywordState, len(keywords)+1)
	for _, kw := range keywords {
		// startURLsLabelはURL起点タスクの予約キー
		if kw == "" || kw == startURLsLabel {
			continue
		}
		states[kw] = &KeywordState{}
	}
	if len(startURLs) > 0 {
		states[startURLsLabel] = &KeywordState{}
	}
	return &Scheduler{
		runner:         runner,
		logger:         logger,
		platform:       platform,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		startURLs:      startURLs,
		states:         states,
	}
}

// Start は設定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("スクレイピングスケジューラを開始しました",
		slog.String("platform", string(s.platform)),
		slog.Int("keyword_count", len(s.states)),
		slog.Duration("interval", s.interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スクレイピングスケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は実行対象のキーワードを1回選び、並列でランナーを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	due := s.dueKeywords()
	if len(due) == 0 {
		s.logger.Info("実行対象のキーワードはありません")
		return
	}

	s.logger.Info("スクレイピングサイクルを開始します",
		slog.Int("keyword_count", len(due)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, keyword := range due {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(kw string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			var err error
			if kw == startURLsLabel {
				err = s.runner.RunStartURLs(ctx, s.platform, s.startURLs)
			} else {
				err = s.runner.Run(ctx, s.platform, kw)
			}
			s.applyResult(kw, err)
		}(keyword)
	}

	wg.Wait()

	s.logger.Info("スクレイピングサイクルが完了しました",
		slog.Int("keyword_count", len(due)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

// dueKeywords は次回実行時刻を過ぎた未停止のキーワードを返す。
func (s *Scheduler) dueKeywords() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	due := make([]string, 0, len(s.states))
	for kw, state := range s.states {
		if state.Stopped {
			continue
		}
		if state.NextRunAt.After(now) {
			continue
		}
		due = append(due, kw)
	}
	return due
}

// applyResult は実行結果をキーワード状態に反映する。
func (s *Scheduler) applyResult(keyword string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[keyword]
	if !ok {
		return
	}

	if err != nil {
		ApplyFailure(state, err.Error())
		if state.Stopped {
			s.logger.Warn("キーワードのスクレイピングを停止します",
				slog.String("keyword", keyword),
				slog.Int("consecutive_errors", state.ConsecutiveErrors),
				slog.String("reason", state.LastError),
			)
		}
		return
	}

	ApplySuccess(state, s.interval)
}

// KeywordStates はテストと診断用に各キーワードの状態のコピーを返す。
func (s *Scheduler) KeywordStates() map[string]KeywordState {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]KeywordState, len(s.states))
	for kw, state := range s.states {
		snapshot[kw] = *state
	}
	return snapshot
}
