package extract

import (
	"errors"
	"strconv"
	"strings"

	"github.com/hitoshi/trendscope/internal/model"
)

// ErrNoIdentity は識別子となるフィールドが1つも存在しないことを表す。
// 識別子の欠落だけが、レコードを書き込み試行せずにスキップする条件となる。
var ErrNoIdentity = errors.New("識別子となるフィールドが存在しません")

// identityChains はプラットフォームごとの識別子候補。
// 共通の"id"を最優先とし、プラットフォーム固有のエイリアス、
// 最後にURL系フィールドへフォールバックする。
var identityChains = map[model.Platform]fieldChain{
	model.PlatformTikTok:    {"id", "awemeId", "videoId", "url", "permalink"},
	model.PlatformInstagram: {"id", "shortCode", "shortcode", "code", "url", "permalink"},
}

// ResolvePostID は生レコードから安定した重複排除キーを解決する。
// 候補のうち最初に存在した非nil値を正規の文字列形式に変換して返す。
// いずれの候補も存在しない場合はErrNoIdentityを返す。
func ResolvePostID(platform model.Platform, raw model.RawRecord) (string, error) {
	for _, path := range identityChains[platform] {
		v, ok := lookupField(raw, path)
		if !ok {
			continue
		}
		if id := canonicalIDString(v); id != "" {
			return id, nil
		}
	}
	return "", ErrNoIdentity
}

// canonicalIDString は識別子の値を正規の文字列形式に変換する。
// 数値識別子は指数表記を避けて整数形式に変換する。
// 変換できない型や空白のみの文字列は空文字列を返す。
func canonicalIDString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	}
	return ""
}
