// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はスクレイピング由来のテキスト（キャプション、
// ユーザー名）からHTMLタグを除去する。生レコードは敵対的入力として
// 扱うため、正規化カラムに保存する文字列はプレーンテキストに限定する。
// 元のペイロードはraw_dataカラムに未加工のまま保持されるため、
// サニタイズによる情報損失は監査・再処理に影響しない。
package security

import "github.com/microcosm-cc/bluemonday"

// TextSanitizerService はスクレイピング由来テキストのサニタイズ
// インターフェースを定義する。投稿の保存前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、
// スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return s.policy.Sanitize(raw)
}
