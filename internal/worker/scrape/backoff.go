package scrape

import (
	"fmt"
	"time"
)

const (
	// initialBackoff は指数バックオフの初回遅延（5分）。
	initialBackoff = 5 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（2時間）。
	maxBackoff = 2 * time.Hour
	// failureThreshold は連続失敗によるキーワード停止の閾値。
	failureThreshold = 10
)

// KeywordState はスケジューラが保持するキーワードごとの実行状態。
type KeywordState struct {
	ConsecutiveErrors int
	NextRunAt         time.Time
	Stopped           bool
	LastError         string
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回5分、2倍ずつ増加、最大2時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyFailure は実行失敗時にキーワード状態へバックオフを適用する。
// 連続エラー回数をインクリメントし、指数バックオフで次回実行時刻を設定する。
// 閾値に達した場合はキーワードを停止する。
func ApplyFailure(state *KeywordState, reason string) {
	state.ConsecutiveErrors++
	state.LastError = reason
	state.NextRunAt = time.Now().Add(CalculateBackoff(state.ConsecutiveErrors - 1))

	if state.ConsecutiveErrors >= failureThreshold {
		state.Stopped = true
		state.LastError = fmt.Sprintf("%d回連続で失敗したため停止しました: %s", state.ConsecutiveErrors, reason)
	}
}

// ApplySuccess は実行成功時にキーワード状態をリセットする。
// 連続エラー回数を0に戻し、intervalに基づいて次回実行時刻を設定する。
func ApplySuccess(state *KeywordState, interval time.Duration) {
	state.ConsecutiveErrors = 0
	state.LastError = ""
	state.Stopped = false
	state.NextRunAt = time.Now().Add(interval)
}
