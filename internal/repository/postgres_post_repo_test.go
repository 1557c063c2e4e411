package repository

import (
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"

	"github.com/hitoshi/trendscope/internal/model"
)

// TestPostgresPostRepo_ImplementsInterface はPostgresPostRepoがPostRepositoryを実装することを検証する。
func TestPostgresPostRepo_ImplementsInterface(t *testing.T) {
	// コンパイル時チェック：PostgresPostRepoがPostRepositoryを満たすことを検証
	var _ PostRepository = (*PostgresPostRepo)(nil)
}

// TestPostgresSearchHistoryRepo_ImplementsInterface はPostgresSearchHistoryRepoが
// SearchHistoryRepositoryを実装することを検証する。
func TestPostgresSearchHistoryRepo_ImplementsInterface(t *testing.T) {
	var _ SearchHistoryRepository = (*PostgresSearchHistoryRepo)(nil)
}

func TestPostTableName(t *testing.T) {
	tests := []struct {
		platform model.Platform
		want     string
		wantErr  bool
	}{
		{model.PlatformTikTok, "tiktok_posts", false},
		{model.PlatformInstagram, "instagram_posts", false},
		{model.Platform("twitter"), "", true},
		{model.Platform(""), "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			got, err := postTableName(tt.platform)
			if tt.wantErr {
				if err == nil {
					t.Fatal("error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("postTableName() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("postTableName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNullString(t *testing.T) {
	if v := nullString(""); v.Valid {
		t.Error("空文字列はNULLに変換されるべき")
	}
	if v := nullString("alice"); !v.Valid || v.String != "alice" {
		t.Errorf("nullString(%q) = %+v", "alice", v)
	}
}

func TestUpsertError_ClassifiesPostgreSQLErrors(t *testing.T) {
	pqErr := &pq.Error{Code: "23502", Constraint: ""}
	err := upsertError(pqErr)
	if !strings.Contains(err.Error(), "sqlstate=23502") {
		t.Errorf("SQLSTATEがメッセージに含まれるべき: %v", err)
	}

	pqErr = &pq.Error{Code: "23505", Constraint: "tiktok_posts_post_id_key"}
	err = upsertError(pqErr)
	if !strings.Contains(err.Error(), "constraint=tiktok_posts_post_id_key") {
		t.Errorf("制約名がメッセージに含まれるべき: %v", err)
	}

	plain := errors.New("driver: bad connection")
	err = upsertError(plain)
	if !errors.Is(err, plain) {
		t.Error("元のエラーをラップして保持するべき")
	}
	if strings.Contains(err.Error(), "sqlstate") {
		t.Errorf("pq以外のエラーにsqlstateを含めるべきではない: %v", err)
	}
}
