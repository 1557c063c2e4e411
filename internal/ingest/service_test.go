package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/trendscope/internal/model"
)

// --- テスト用モック ---

// mockPostRepo はテスト用のPostRepositoryモック。
// post_idをキーとして最後に書き込まれたPostを保持し、冪等性を検証可能にする。
type mockPostRepo struct {
	posts       map[string]*model.Post // post_id -> 最終保存状態
	upsertCalls int
	failPostIDs map[string]error // 書き込み失敗を注入するpost_id
}

func newMockPostRepo() *mockPostRepo {
	return &mockPostRepo{
		posts:       make(map[string]*model.Post),
		failPostIDs: make(map[string]error),
	}
}

func (m *mockPostRepo) Upsert(_ context.Context, post *model.Post) error {
	m.upsertCalls++
	if err, ok := m.failPostIDs[post.PostID]; ok {
		return err
	}
	m.posts[post.PostID] = post
	return nil
}

func (m *mockPostRepo) ListRecentRaw(_ context.Context, _ model.Platform, _ int) ([]model.RawRecord, error) {
	return nil, nil
}

// mockHealth はテスト用のStorageHealthCheckerモック。
type mockHealth struct {
	pingErr error
}

func (m *mockHealth) PingContext(_ context.Context) error {
	return m.pingErr
}

// passthroughSanitizer はテスト用のサニタイザ。入力をそのまま返す。
type passthroughSanitizer struct {
	calls int
}

func (s *passthroughSanitizer) Sanitize(raw string) string {
	s.calls++
	return raw
}

func testIdentity() *model.Identity {
	return &model.Identity{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Email:    "user@example.com",
	}
}

func newTestService(repo *mockPostRepo, health *mockHealth) *BatchUpsertService {
	return NewBatchUpsertService(repo, health, &passthroughSanitizer{}, nil)
}

// --- テスト本体 ---

func TestIngest_SavedPlusSkippedEqualsTotal(t *testing.T) {
	repo := newMockPostRepo()
	svc := newTestService(repo, &mockHealth{})

	records := []model.RawRecord{
		{"id": "a", "playCount": float64(1)},
		{"playCount": float64(2)}, // 識別子なし → スキップ
		{"id": "c", "playCount": float64(3)},
	}

	result, err := svc.Ingest(context.Background(), model.PlatformTikTok, records, "ai", testIdentity())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Total != 3 {
		t.Errorf("Total = %d, want 3", result.Total)
	}
	if result.Saved+result.Skipped != result.Total {
		t.Errorf("Saved(%d) + Skipped(%d) != Total(%d)",
			result.Saved, result.Skipped, result.Total)
	}
	if result.Saved != 2 {
		t.Errorf("Saved = %d, want 2", result.Saved)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
}

func TestIngest_RecordsWithoutIDSkipWrite(t *testing.T) {
	repo := newMockPostRepo()
	svc := newTestService(repo, &mockHealth{})

	records := []model.RawRecord{
		{"playCount": float64(1), "diggCount": float64(2)},
	}

	result, err := svc.Ingest(context.Background(), model.PlatformTikTok, records, "ai", testIdentity())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Skipped != 1 || result.Saved != 0 {
		t.Errorf("Saved = %d, Skipped = %d, want 0/1", result.Saved, result.Skipped)
	}
	if repo.upsertCalls != 0 {
		t.Errorf("upsertCalls = %d, want 0（書き込みを試行してはならない）", repo.upsertCalls)
	}
	// 識別子欠落は書き込み試行ではないため、エラーリストには載らない
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want 空", result.Errors)
	}
}

func TestIngest_SingleRecordFailureDoesNotAbortBatch(t *testing.T) {
	repo := newMockPostRepo()
	repo.failPostIDs["b"] = errors.New("一意制約違反")
	svc := newTestService(repo, &mockHealth{})

	records := []model.RawRecord{
		{"id": "a"},
		{"id": "b"},
		{"id": "c"},
	}

	result, err := svc.Ingest(context.Background(), model.PlatformTikTok, records, "ai", testIdentity())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Saved != 2 {
		t.Errorf("Saved = %d, want 2", result.Saved)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(result.Errors))
	}
	if result.Errors[0].PostID != "b" {
		t.Errorf("Errors[0].PostID = %q, want %q", result.Errors[0].PostID, "b")
	}
	// 失敗したレコードの前後は保存されている
	if _, ok := repo.posts["a"]; !ok {
		t.Error("レコードaが保存されていません")
	}
	if _, ok := repo.posts["c"]; !ok {
		t.Error("レコードcが保存されていません")
	}
}

func TestIngest_ReingestingBatchDoesNotDuplicateRows(t *testing.T) {
	repo := newMockPostRepo()
	svc := newTestService(repo, &mockHealth{})

	records := []model.RawRecord{
		{"id": "a", "playCount": float64(10)},
		{"id": "b", "playCount": float64(20)},
	}

	for i := 0; i < 2; i++ {
		result, err := svc.Ingest(context.Background(), model.PlatformTikTok, records, "ai", testIdentity())
		if err != nil {
			t.Fatalf("Ingest()（%d回目）error = %v", i+1, err)
		}
		if result.Saved != 2 {
			t.Errorf("Saved（%d回目）= %d, want 2", i+1, result.Saved)
		}
	}

	if len(repo.posts) != 2 {
		t.Errorf("保存行数 = %d, want 2（重複行が作成されてはならない）", len(repo.posts))
	}
	if repo.posts["a"].Metrics.PlayCount != 10 {
		t.Errorf("PlayCount = %d, want 10", repo.posts["a"].Metrics.PlayCount)
	}
}

func TestIngest_ReingestOverwritesKeyword(t *testing.T) {
	repo := newMockPostRepo()
	svc := newTestService(repo, &mockHealth{})

	records := []model.RawRecord{{"id": "a"}}

	if _, err := svc.Ingest(context.Background(), model.PlatformTikTok, records, "古いキーワード", testIdentity()); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := svc.Ingest(context.Background(), model.PlatformTikTok, records, "新しいキーワード", testIdentity()); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if got := repo.posts["a"].SearchHashtag; got != "新しいキーワード" {
		t.Errorf("SearchHashtag = %q, want %q", got, "新しいキーワード")
	}
}

func TestIngest_PreconditionViolations(t *testing.T) {
	repo := newMockPostRepo()
	svc := newTestService(repo, &mockHealth{})
	valid := []model.RawRecord{{"id": "a"}}

	tests := []struct {
		name     string
		records  []model.RawRecord
		keyword  string
		ident    *model.Identity
		wantCode string
	}{
		{"空バッチ", nil, "ai", testIdentity(), model.ErrCodeEmptyBatch},
		{"空白のみのキーワード", valid, "   ", testIdentity(), model.ErrCodeEmptyKeyword},
		{"アイデンティティ未解決", valid, "ai", nil, model.ErrCodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), model.PlatformTikTok, tt.records, tt.keyword, tt.ident)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want APIError", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if repo.upsertCalls != 0 {
				t.Errorf("upsertCalls = %d, want 0（事前条件違反では1件も書き込まない）", repo.upsertCalls)
			}
		})
	}
}

func TestIngest_TotalStorageLossIsSingleError(t *testing.T) {
	repo := newMockPostRepo()
	svc := newTestService(repo, &mockHealth{pingErr: errors.New("connection refused")})

	_, err := svc.Ingest(context.Background(), model.PlatformTikTok,
		[]model.RawRecord{{"id": "a"}}, "ai", testIdentity())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.Code != model.ErrCodeStorageUnavailable {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeStorageUnavailable)
	}
	if repo.upsertCalls != 0 {
		t.Errorf("upsertCalls = %d, want 0", repo.upsertCalls)
	}
}

func TestIngest_KeywordIsTrimmedAndSetOnEachPost(t *testing.T) {
	repo := newMockPostRepo()
	svc := newTestService(repo, &mockHealth{})

	_, err := svc.Ingest(context.Background(), model.PlatformTikTok,
		[]model.RawRecord{{"id": "a"}}, "  ai  ", testIdentity())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if got := repo.posts["a"].SearchHashtag; got != "ai" {
		t.Errorf("SearchHashtag = %q, want %q", got, "ai")
	}
	if repo.posts["a"].ScrapedAt.IsZero() {
		t.Error("ScrapedAtが設定されていません")
	}
}

func TestIngest_InstagramTextIsSanitized(t *testing.T) {
	repo := newMockPostRepo()
	sanitizer := &passthroughSanitizer{}
	svc := NewBatchUpsertService(repo, &mockHealth{}, sanitizer, nil)

	_, err := svc.Ingest(context.Background(), model.PlatformInstagram,
		[]model.RawRecord{{"shortCode": "A", "caption": "<b>caption</b>"}},
		"photo", testIdentity())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	// caption と owner_username の2回呼ばれる
	if sanitizer.calls != 2 {
		t.Errorf("サニタイザ呼び出し回数 = %d, want 2", sanitizer.calls)
	}
}
