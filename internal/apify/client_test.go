package apify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/trendscope/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, nil))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestClient(serverURL string) *Client {
	return NewClient(&http.Client{}, testLogger(), "test-token", serverURL, 0)
}

func TestFetchPosts_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/acts/"):
			if r.Method != http.MethodPost {
				t.Errorf("アクター実行のメソッド = %s, want POST", r.Method)
			}
			if r.URL.Query().Get("token") != "test-token" {
				t.Error("tokenクエリパラメータが設定されていません")
			}
			if r.URL.Query().Get("wait_for_finish") == "" {
				t.Error("wait_for_finishクエリパラメータが設定されていません")
			}

			var input map[string]any
			if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
				t.Errorf("アクター入力のデコードに失敗: %v", err)
			}
			if _, ok := input["search"]; !ok {
				t.Error("TikTok用アクター入力にsearchが含まれていません")
			}

			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"id":               "run-1",
					"status":           "SUCCEEDED",
					"defaultDatasetId": "dataset-1",
				},
			})

		case strings.HasPrefix(r.URL.Path, "/v2/datasets/dataset-1/items"):
			json.NewEncoder(w).Encode([]map[string]any{
				{"id": "post-1", "playCount": 10},
				{"id": "post-2", "playCount": 20},
			})

		default:
			t.Errorf("予期しないリクエスト: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	records, err := client.FetchPosts(context.Background(), model.PlatformTikTok, "ai", 20)
	if err != nil {
		t.Fatalf("FetchPosts() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("レコード数 = %d, want 2", len(records))
	}
	if records[0]["id"] != "post-1" {
		t.Errorf("records[0][id] = %v, want post-1", records[0]["id"])
	}
}

func TestNewClient_ConfiguredBaseURLAndWaitSeconds(t *testing.T) {
	var gotPath, gotWait string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotWait = r.URL.Query().Get("wait_for_finish")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "run-1", "status": "SUCCEEDED", "defaultDatasetId": "ds-1"},
		})
	}))
	defer server.Close()

	// 設定値がそのままリクエストに反映されること
	client := NewClient(&http.Client{}, testLogger(), "test-token", server.URL, 45)
	if _, err := client.RunActorSync(context.Background(), "some~actor", map[string]any{}); err != nil {
		t.Fatalf("RunActorSync() error = %v", err)
	}

	if !strings.HasPrefix(gotPath, "/v2/acts/") {
		t.Errorf("リクエストが設定されたベースURLに届いていません: path = %q", gotPath)
	}
	if gotWait != "45" {
		t.Errorf("wait_for_finish = %q, want %q", gotWait, "45")
	}
}

func TestNewClient_ZeroValuesFallBackToDefaults(t *testing.T) {
	client := NewClient(&http.Client{}, testLogger(), "test-token", "", 0)

	if client.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL, defaultBaseURL)
	}
	if client.waitSeconds != defaultWaitSeconds {
		t.Errorf("waitSeconds = %d, want %d", client.waitSeconds, defaultWaitSeconds)
	}
}

func TestFetchWorkerPosts_SendsWorkerActorInput(t *testing.T) {
	var gotActorPath string
	var gotInput map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/acts/"):
			gotActorPath = r.URL.Path
			if err := json.NewDecoder(r.Body).Decode(&gotInput); err != nil {
				t.Errorf("アクター入力のデコードに失敗: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"id": "run-1", "status": "SUCCEEDED", "defaultDatasetId": "ds-1"},
			})
		case strings.HasPrefix(r.URL.Path, "/v2/datasets/ds-1/items"):
			json.NewEncoder(w).Encode([]map[string]any{{"id": "post-1"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	records, err := client.FetchWorkerPosts(context.Background(), WorkerInput{
		Keywords:  []string{"dance"},
		StartURLs: []string{"https://www.tiktok.com/@creator"},
		MaxItems:  50,
	})
	if err != nil {
		t.Fatalf("FetchWorkerPosts() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("レコード数 = %d, want 1", len(records))
	}

	if !strings.Contains(gotActorPath, "apidojo~tiktok-scraper") {
		t.Errorf("アクターID = %q, want apidojo~tiktok-scraper", gotActorPath)
	}

	// 設定型アクター入力の必須フィールド
	if kws, ok := gotInput["keywords"].([]any); !ok || len(kws) != 1 || kws[0] != "dance" {
		t.Errorf("keywords = %v, want [dance]", gotInput["keywords"])
	}
	if urls, ok := gotInput["startUrls"].([]any); !ok || len(urls) != 1 || urls[0] != "https://www.tiktok.com/@creator" {
		t.Errorf("startUrls = %v", gotInput["startUrls"])
	}
	if gotInput["maxItems"] != float64(50) {
		t.Errorf("maxItems = %v, want 50", gotInput["maxItems"])
	}
	if gotInput["sortType"] != "RELEVANCE" {
		t.Errorf("sortType = %v, want RELEVANCE", gotInput["sortType"])
	}
	if gotInput["dateRange"] != "DEFAULT" {
		t.Errorf("dateRange = %v, want DEFAULT", gotInput["dateRange"])
	}
	if gotInput["location"] != "US" {
		t.Errorf("location = %v, want US", gotInput["location"])
	}
	proxy, ok := gotInput["proxy"].(map[string]any)
	if !ok || proxy["useApifyProxy"] != true {
		t.Errorf("proxy = %v, want useApifyProxy=true", gotInput["proxy"])
	}
}

func TestFetchWorkerPosts_EmptyInputUsesDefaults(t *testing.T) {
	var gotInput map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/acts/"):
			json.NewDecoder(r.Body).Decode(&gotInput)
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"id": "run-1", "status": "SUCCEEDED", "defaultDatasetId": "ds-1"},
			})
		default:
			json.NewEncoder(w).Encode([]map[string]any{})
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.FetchWorkerPosts(context.Background(), WorkerInput{}); err != nil {
		t.Fatalf("FetchWorkerPosts() error = %v", err)
	}

	if gotInput["maxItems"] != float64(defaultWorkerMaxItems) {
		t.Errorf("maxItems = %v, want %d", gotInput["maxItems"], defaultWorkerMaxItems)
	}
	// 未指定のリストはnullではなく空配列で送る
	if _, ok := gotInput["keywords"].([]any); !ok {
		t.Errorf("keywords = %v, want 空配列", gotInput["keywords"])
	}
	if _, ok := gotInput["startUrls"].([]any); !ok {
		t.Errorf("startUrls = %v, want 空配列", gotInput["startUrls"])
	}
}

func TestRunActorSync_ActorFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.RunActorSync(context.Background(), "some~actor", map[string]any{})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.Code != model.ErrCodeActorRunFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeActorRunFailed)
	}
}

func TestRunActorSync_MissingDatasetReturnsDedicatedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 実行は成功したがデータセットが生成されなかったケース
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "run-1", "status": "FAILED"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.RunActorSync(context.Background(), "some~actor", map[string]any{})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.Code != model.ErrCodeDatasetMissing {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeDatasetMissing)
	}
}

func TestFetchPosts_UnsupportedPlatform(t *testing.T) {
	client := newTestClient("http://unused.invalid")

	_, err := client.FetchPosts(context.Background(), model.Platform("twitter"), "ai", 10)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPlatform {
		t.Fatalf("error = %v, want INVALID_PLATFORM", err)
	}
}

func TestFetchDatasetItems_MalformedJSONIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchDatasetItems(context.Background(), "dataset-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeActorRunFailed {
		t.Fatalf("error = %v, want ACTOR_RUN_FAILED", err)
	}
}
