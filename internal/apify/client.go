// Package apify はスクレイピングアクター（Apify）との連携を提供する。
// アクターの同期実行と結果データセットの取得を行う。
// アクターの出力スキーマは信頼できない不安定なデータソースとして扱い、
// 取得したレコードはそのままextractパッケージのフォールバック規則に渡す。
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/trendscope/internal/model"
)

const (
	// defaultBaseURL はApify APIのベースURL。
	defaultBaseURL = "https://api.apify.com"

	// tiktokActorID はライブ検索用TikTokアクターのID。
	tiktokActorID = "clockworks~tiktok-scraper"
	// instagramActorID はInstagramハッシュタグ検索用アクターのID。
	instagramActorID = "apify~instagram-hashtag-scraper"
	// workerActorID はワーカー用TikTokアクターのID。
	// keywords/startUrls/sortType/dateRange/locationを含む設定型の入力を取る。
	workerActorID = "apidojo~tiktok-scraper"

	// defaultWaitSeconds はアクター実行完了を待機する秒数。
	defaultWaitSeconds = 120
	// defaultResultsPerQuery は1クエリあたりの取得件数。
	defaultResultsPerQuery = 20

	// ワーカーアクター入力のデフォルト値。
	defaultWorkerMaxItems  = 200
	defaultWorkerSortType  = "RELEVANCE"
	defaultWorkerDateRange = "DEFAULT"
	defaultWorkerLocation  = "US"
)

// runResponse はアクター実行APIのレスポンス。
type runResponse struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

// Client はApify APIのクライアント。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	token       string
	baseURL     string
	waitSeconds int
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合は本番エンドポイント、waitSecondsが0以下の場合は
// デフォルトの待機秒数を使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, token, baseURL string, waitSeconds int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if waitSeconds <= 0 {
		waitSeconds = defaultWaitSeconds
	}
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		token:       token,
		baseURL:     baseURL,
		waitSeconds: waitSeconds,
	}
}

// FetchPosts は検索クエリに対応するアクターを同期実行し、
// 結果データセットの全レコードを返す。
// アクター実行・データセット取得のいずれの失敗も取り込み試行全体に対して
// 致命的であり、部分結果は存在しない。
func (c *Client) FetchPosts(ctx context.Context, platform model.Platform, query string, maxItems int) ([]model.RawRecord, error) {
	if maxItems <= 0 {
		maxItems = defaultResultsPerQuery
	}

	var actorID string
	var input map[string]any
	switch platform {
	case model.PlatformTikTok:
		actorID = tiktokActorID
		input = map[string]any{
			"search":               []string{query},
			"resultsPerPage":       maxItems,
			"shouldDownloadVideos": false,
		}
	case model.PlatformInstagram:
		actorID = instagramActorID
		input = map[string]any{
			"hashtags":     []string{query},
			"resultsLimit": maxItems,
		}
	default:
		return nil, model.NewInvalidPlatformError(string(platform))
	}

	datasetID, err := c.RunActorSync(ctx, actorID, input)
	if err != nil {
		return nil, err
	}

	return c.FetchDatasetItems(ctx, datasetID)
}

// WorkerInput はワーカー用TikTokアクターの入力設定。
// キーワード検索と個別URLのスクレイピングを1回の実行にまとめられる。
// StartURLsは呼び出し側でSSRF検証済みであることを前提とする。
type WorkerInput struct {
	Keywords  []string
	StartURLs []string
	MaxItems  int
	SortType  string
	DateRange string
	Location  string
}

// FetchWorkerPosts はワーカー用アクターを同期実行し、
// 結果データセットの全レコードを返す。
// 未指定の設定値にはアクターのデフォルト（RELEVANCE / DEFAULT / US）を補う。
func (c *Client) FetchWorkerPosts(ctx context.Context, in WorkerInput) ([]model.RawRecord, error) {
	if in.MaxItems <= 0 {
		in.MaxItems = defaultWorkerMaxItems
	}
	if in.SortType == "" {
		in.SortType = defaultWorkerSortType
	}
	if in.DateRange == "" {
		in.DateRange = defaultWorkerDateRange
	}
	if in.Location == "" {
		in.Location = defaultWorkerLocation
	}
	if in.Keywords == nil {
		in.Keywords = []string{}
	}
	if in.StartURLs == nil {
		in.StartURLs = []string{}
	}

	input := map[string]any{
		"keywords":  in.Keywords,
		"startUrls": in.StartURLs,
		"maxItems":  in.MaxItems,
		"sortType":  in.SortType,
		"dateRange": in.DateRange,
		"location":  in.Location,
		"proxy":     map[string]any{"useApifyProxy": true},
	}

	datasetID, err := c.RunActorSync(ctx, workerActorID, input)
	if err != nil {
		return nil, err
	}

	return c.FetchDatasetItems(ctx, datasetID)
}

// RunActorSync はアクターを実行し、完了まで待機してデータセットIDを返す。
// wait_for_finishパラメータによりAPIサーバー側で完了を待つため、
// クライアント側のポーリングは不要。
func (c *Client) RunActorSync(ctx context.Context, actorID string, input any) (string, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("アクター入力のJSONエンコードに失敗しました: %w", err)
	}

	reqURL := fmt.Sprintf("%s/v2/acts/%s/runs?token=%s&wait_for_finish=%d",
		c.baseURL, url.PathEscape(actorID), url.QueryEscape(c.token), c.waitSeconds)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("アクター実行APIの呼び出しに失敗しました",
			slog.String("actor_id", actorID),
			slog.String("error", err.Error()),
		)
		return "", model.NewActorRunFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("アクター実行APIがエラーステータスを返しました",
			slog.String("actor_id", actorID),
			slog.Int("http_status", resp.StatusCode),
		)
		return "", model.NewActorRunFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	var run runResponse
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return "", model.NewActorRunFailedError("レスポンスJSONのパースに失敗しました")
	}

	if run.Data.DefaultDatasetID == "" {
		c.logger.Error("アクター実行結果にデータセットIDが含まれていません",
			slog.String("actor_id", actorID),
			slog.String("run_status", run.Data.Status),
		)
		return "", model.NewDatasetMissingError()
	}

	c.logger.Info("アクター実行が完了しました",
		slog.String("actor_id", actorID),
		slog.String("run_id", run.Data.ID),
		slog.String("run_status", run.Data.Status),
		slog.String("dataset_id", run.Data.DefaultDatasetID),
	)

	return run.Data.DefaultDatasetID, nil
}

// FetchDatasetItems はデータセットの全レコードを取得する。
func (c *Client) FetchDatasetItems(ctx context.Context, datasetID string) ([]model.RawRecord, error) {
	reqURL := fmt.Sprintf("%s/v2/datasets/%s/items?token=%s&clean=true",
		c.baseURL, url.PathEscape(datasetID), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("データセット取得APIの呼び出しに失敗しました",
			slog.String("dataset_id", datasetID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewActorRunFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("データセット取得APIがエラーステータスを返しました",
			slog.String("dataset_id", datasetID),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewActorRunFailedError(fmt.Sprintf("データセット取得: HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var records []model.RawRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, model.NewActorRunFailedError("データセットJSONのパースに失敗しました")
	}

	return records, nil
}
