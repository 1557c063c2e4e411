package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, ingest, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeEmptyBatch         = "EMPTY_BATCH"
	ErrCodeEmptyKeyword       = "EMPTY_KEYWORD"
	ErrCodeInvalidPlatform    = "INVALID_PLATFORM"
	ErrCodeEmptySearchTerm    = "EMPTY_SEARCH_TERM"
	ErrCodeActorRunFailed     = "ACTOR_RUN_FAILED"
	ErrCodeDatasetMissing     = "DATASET_MISSING"
	ErrCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
)

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "有効なトークンを指定してください。",
	}
}

// NewEmptyBatchError は空バッチエラーを生成する。
// 空の入力は0件成功ではなく呼び出し元の誤りとして扱う。
func NewEmptyBatchError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyBatch,
		Message:  "投稿データが空です。",
		Category: "validation",
		Action:   "postsに1件以上のレコードを指定してください。",
	}
}

// NewEmptyKeywordError は検索キーワード未指定エラーを生成する。
func NewEmptyKeywordError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyKeyword,
		Message:  "search_hashtagが指定されていません。",
		Category: "validation",
		Action:   "バッチの取得元となった検索キーワードを指定してください。",
	}
}

// NewInvalidPlatformError はサポート外プラットフォームエラーを生成する。
func NewInvalidPlatformError(platform string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlatform,
		Message:  fmt.Sprintf("サポートされていないプラットフォームです: %s", platform),
		Category: "validation",
		Action:   "プラットフォームには tiktok または instagram を指定してください。",
	}
}

// NewEmptySearchTermError は検索語未指定エラーを生成する。
func NewEmptySearchTermError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptySearchTerm,
		Message:  "search_termが指定されていません。",
		Category: "validation",
		Action:   "空白以外の検索語を指定してください。",
	}
}

// NewActorRunFailedError はスクレイピングアクターの実行失敗エラーを生成する。
// 取り込み試行全体に対して致命的であり、部分結果は存在しない。
func NewActorRunFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeActorRunFailed,
		Message:  fmt.Sprintf("スクレイパーの実行に失敗しました: %s", reason),
		Category: "ingest",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewDatasetMissingError はアクター実行がデータセットを生成しなかった場合のエラーを生成する。
func NewDatasetMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeDatasetMissing,
		Message:  "スクレイパーの実行結果からデータセットを取得できませんでした。",
		Category: "ingest",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStorageUnavailableError はストレージバックエンド全体の喪失エラーを生成する。
// レコード単体の書き込み失敗とは区別される。
func NewStorageUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  "データベースに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}
