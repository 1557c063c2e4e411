package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockStatusRecorder はHTTPStatusRecorderのテスト用モック。
type mockStatusRecorder struct {
	statuses []int
}

func (m *mockStatusRecorder) RecordHTTPStatus(statusCode int) {
	m.statuses = append(m.statuses, statusCode)
}

func TestMetricsMiddleware_RecordsStatusCode(t *testing.T) {
	recorder := &mockStatusRecorder{}
	handler := NewMetricsMiddleware(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/history", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(recorder.statuses) != 1 || recorder.statuses[0] != http.StatusCreated {
		t.Errorf("recorded statuses = %v, want [201]", recorder.statuses)
	}
}

func TestMetricsMiddleware_DefaultsTo200WhenNotSet(t *testing.T) {
	recorder := &mockStatusRecorder{}
	handler := NewMetricsMiddleware(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(recorder.statuses) != 1 || recorder.statuses[0] != http.StatusOK {
		t.Errorf("recorded statuses = %v, want [200]", recorder.statuses)
	}
}
