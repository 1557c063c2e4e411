// Package extract は生の投稿レコードから正規化済みフィールドを抽出する。
//
// スクレイピングアクターの出力スキーマはバージョンやプラットフォームによって
// 繰り返し変化してきたため、各正規化フィールドに対して候補フィールド名の
// 順序付きリスト（フォールバックチェーン）をデータとして保持し、
// 先頭から順に最初に存在した値を採用する。新しいスキーマ変種への対応は
// チェーンへの候補追加のみで済み、コード変更を必要としない。
package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/trendscope/internal/model"
)

// epochMillisThreshold 未満の数値タイムスタンプは秒として解釈し、
// 1000倍してミリ秒に変換する。それ以上はミリ秒として扱う。
const epochMillisThreshold = 1_000_000_000_000

// fieldChain は1つの正規化フィールドに対する候補フィールド名の順序付きリスト。
// 各候補は "stats.playCount" のようにドット区切りでネストを辿れる。
type fieldChain []string

// timestampChains はプラットフォームごとの投稿日時候補。
var timestampChains = map[model.Platform]fieldChain{
	model.PlatformTikTok:    {"createTime", "createTimeISO", "created_at"},
	model.PlatformInstagram: {"timestamp", "takenAtTimestamp", "taken_at_timestamp", "created_at"},
}

// tiktokCounterChains はTikTokのエンゲージメントカウンター候補。
// 旧バージョンのアクターはトップレベルに、新バージョンはstatsオブジェクト
// 配下にカウンターを置くため、両方を候補に含める。
var tiktokCounterChains = map[string]fieldChain{
	"play":    {"stats.playCount", "playCount", "views", "play_count"},
	"digg":    {"stats.diggCount", "diggCount", "likes", "digg_count"},
	"comment": {"stats.commentCount", "commentCount", "comments", "comment_count"},
	"share":   {"stats.shareCount", "shareCount", "shares", "share_count"},
}

// instagramCounterChains はInstagramのエンゲージメントカウンター候補。
var instagramCounterChains = map[string]fieldChain{
	"likes":    {"likesCount", "likes_count", "likes", "edge_liked_by.count"},
	"comments": {"commentsCount", "comments_count", "comments", "edge_media_to_comment.count"},
	"saves":    {"savesCount", "saves_count", "saves"},
	"shares":   {"sharesCount", "shares_count", "reshareCount"},
	"views":    {"videoViewCount", "viewsCount", "video_view_count", "videoPlayCount"},
}

// instagramStringChains はInstagram固有の文字列フィールド候補。
var instagramStringChains = map[string]fieldChain{
	"owner":   {"ownerUsername", "owner.username", "username"},
	"caption": {"caption", "caption.text", "captionText"},
}

// Extractor は1件のRawRecordを正規化済みPostに変換する。
// I/Oを持たない純粋なロジックであり、複数ゴルーチンから同時に使用できる。
type Extractor struct{}

// NewExtractor はExtractorの新しいインスタンスを生成する。
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract は生レコードから正規化済みPostを抽出する。
// 識別子を解決できない場合のみエラー（ErrNoIdentity）を返す。
// カウンターの欠落・非数値は0、タイムスタンプの欠落はnilとなり、
// レコードが拒否されることはない。search_hashtagとscraped_atは
// バッチコンテキストから供給されるため、ここでは設定しない。
func (e *Extractor) Extract(platform model.Platform, raw model.RawRecord) (*model.Post, error) {
	postID, err := ResolvePostID(platform, raw)
	if err != nil {
		return nil, err
	}

	post := &model.Post{
		PostID:        postID,
		Platform:      platform,
		PostCreatedAt: e.extractTimestamp(platform, raw),
		RawData:       raw,
	}

	switch platform {
	case model.PlatformTikTok:
		post.Metrics = model.EngagementMetrics{
			PlayCount:    lookupInt(raw, tiktokCounterChains["play"]),
			DiggCount:    lookupInt(raw, tiktokCounterChains["digg"]),
			CommentCount: lookupInt(raw, tiktokCounterChains["comment"]),
			ShareCount:   lookupInt(raw, tiktokCounterChains["share"]),
		}
	case model.PlatformInstagram:
		post.Metrics = model.EngagementMetrics{
			LikesCount:   lookupInt(raw, instagramCounterChains["likes"]),
			CommentCount: lookupInt(raw, instagramCounterChains["comments"]),
			SavesCount:   lookupInt(raw, instagramCounterChains["saves"]),
			ShareCount:   lookupInt(raw, instagramCounterChains["shares"]),
			ViewsCount:   lookupInt(raw, instagramCounterChains["views"]),
		}
		post.OwnerUsername = lookupString(raw, instagramStringChains["owner"])
		post.Caption = lookupString(raw, instagramStringChains["caption"])
	}

	return post, nil
}

// extractTimestamp はフォールバックチェーンから投稿日時を抽出する。
// 候補が1つも存在しない場合はnilを返す（抽出失敗ではない）。
func (e *Extractor) extractTimestamp(platform model.Platform, raw model.RawRecord) *time.Time {
	for _, path := range timestampChains[platform] {
		v, ok := lookupField(raw, path)
		if !ok {
			continue
		}
		if t, ok := coerceTime(v); ok {
			return &t
		}
	}
	return nil
}

// lookupField はドット区切りのパスでネストしたマップを辿り、値を取得する。
// パス上のいずれかが欠落・nil・マップ以外の場合は存在しないものとして扱う。
func lookupField(raw model.RawRecord, path string) (any, bool) {
	var current any = map[string]any(raw)
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok || v == nil {
			return nil, false
		}
		current = v
	}
	return current, true
}

// lookupInt はチェーンの先頭から順に候補を試し、最初に数値に変換できた値を返す。
// 全候補が欠落または非数値の場合は0を返す。負値も0に丸める。
// この寛容な挙動はバッチ継続の契約が依存しているため、拒否に変更してはならない。
func lookupInt(raw model.RawRecord, chain fieldChain) int {
	for _, path := range chain {
		v, ok := lookupField(raw, path)
		if !ok {
			continue
		}
		if n, ok := coerceInt(v); ok {
			if n < 0 {
				return 0
			}
			return n
		}
	}
	return 0
}

// lookupString はチェーンの先頭から順に候補を試し、最初に見つかった
// 空白以外の文字列を返す。見つからない場合は空文字列を返す。
func lookupString(raw model.RawRecord, chain fieldChain) string {
	for _, path := range chain {
		v, ok := lookupField(raw, path)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// coerceInt は値を整数に変換する。
// encoding/jsonがデコードした数値（float64）、文字列化された数値、
// および整数型を受け付ける。
func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

// timestampLayouts は日付文字列のパースに試すレイアウトの順序付きリスト。
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// coerceTime は値を絶対UTC時刻に変換する。
// 数値はエポック値として解釈し、10^12未満は秒、以上はミリ秒として扱う。
// 文字列は数値文字列であればエポック値として、そうでなければ
// 既知のレイアウトで日付としてパースする。
func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return epochToTime(int64(t)), true
	case int:
		return epochToTime(int64(t)), true
	case int64:
		return epochToTime(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochToTime(epoch), true
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// epochToTime はエポック値をUTC時刻に変換する。
// 秒とミリ秒の曖昧性はepochMillisThresholdで判別する。
func epochToTime(epoch int64) time.Time {
	if epoch < epochMillisThreshold {
		epoch *= 1000
	}
	return time.UnixMilli(epoch).UTC()
}
