package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue は指定メトリクスのカウンタ値をギャザー結果から取り出す。
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if want, ok := labels[l.GetName()]; ok && want != l.GetValue() {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}

	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordPostSaved_IncrementsCounter は保存カウンタがプラットフォーム別に増加することを検証する。
func TestRecordPostSaved_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPostSaved("tiktok")
	c.RecordPostSaved("tiktok")
	c.RecordPostSaved("instagram")

	if got := counterValue(t, reg, "trendscope_posts_saved_total", map[string]string{"platform": "tiktok"}); got != 2 {
		t.Errorf("posts_saved_total{platform=tiktok} = %v, want 2", got)
	}
	if got := counterValue(t, reg, "trendscope_posts_saved_total", map[string]string{"platform": "instagram"}); got != 1 {
		t.Errorf("posts_saved_total{platform=instagram} = %v, want 1", got)
	}
}

// TestRecordPostSkipped_IncrementsCounterWithReason はスキップカウンタが理由別に増加することを検証する。
func TestRecordPostSkipped_IncrementsCounterWithReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPostSkipped("tiktok", "no_identity")
	c.RecordPostSkipped("tiktok", "no_identity")
	c.RecordPostSkipped("tiktok", "upsert_error")

	if got := counterValue(t, reg, "trendscope_posts_skipped_total", map[string]string{"platform": "tiktok", "reason": "no_identity"}); got != 2 {
		t.Errorf("posts_skipped_total{reason=no_identity} = %v, want 2", got)
	}
	if got := counterValue(t, reg, "trendscope_posts_skipped_total", map[string]string{"platform": "tiktok", "reason": "upsert_error"}); got != 1 {
		t.Errorf("posts_skipped_total{reason=upsert_error} = %v, want 1", got)
	}
}

// TestRecordActorRun_IncrementsCounters はアクター実行の成功・失敗カウンタを検証する。
// 失敗カウンタは理由別にラベル付けされる。
func TestRecordActorRun_IncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordActorRunSuccess("tiktok")
	c.RecordActorRunFailure("instagram", "timeout")
	c.RecordActorRunFailure("instagram", "timeout")
	c.RecordActorRunFailure("instagram", "fetch_failed")

	if got := counterValue(t, reg, "trendscope_actor_run_success_total", map[string]string{"platform": "tiktok"}); got != 1 {
		t.Errorf("actor_run_success_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "trendscope_actor_run_fail_total", map[string]string{"platform": "instagram", "reason": "timeout"}); got != 2 {
		t.Errorf("actor_run_fail_total{reason=timeout} = %v, want 2", got)
	}
	if got := counterValue(t, reg, "trendscope_actor_run_fail_total", map[string]string{"platform": "instagram", "reason": "fetch_failed"}); got != 1 {
		t.Errorf("actor_run_fail_total{reason=fetch_failed} = %v, want 1", got)
	}
}

// TestRecordActorRunLatency_Observes はレイテンシヒストグラムにサンプルが記録されることを検証する。
func TestRecordActorRunLatency_Observes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordActorRunLatency(45 * time.Second)
	c.RecordActorRunLatency(90 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "trendscope_actor_run_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample count = %d, want 2", h.GetSampleCount())
			}
			if h.GetSampleSum() != 135 {
				t.Errorf("sample sum = %v, want 135", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("trendscope_actor_run_latency_seconds metric not found")
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	if got := counterValue(t, reg, "trendscope_http_status_total", map[string]string{"status_code": "200"}); got != 2 {
		t.Errorf("http_status_total{status_code=200} = %v, want 2", got)
	}
	if got := counterValue(t, reg, "trendscope_http_status_total", map[string]string{"status_code": "404"}); got != 1 {
		t.Errorf("http_status_total{status_code=404} = %v, want 1", got)
	}
}

// TestRecordHistoryRecorded_IncrementsCounter は検索履歴カウンタが増加することを検証する。
func TestRecordHistoryRecorded_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHistoryRecorded("tiktok")

	if got := counterValue(t, reg, "trendscope_history_recorded_total", map[string]string{"platform": "tiktok"}); got != 1 {
		t.Errorf("history_recorded_total = %v, want 1", got)
	}
}

// TestCollectorImplementsInterface はCollectorがインターフェースを実装していることを検証する。
func TestCollectorImplementsInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}
