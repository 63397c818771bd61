// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/system"
)

type fakeQueue struct {
	items     []mail.ItemStatus
	errItems  []mail.ItemStatus
	resent    int
	resendErr error
	disabled  bool
}

func (q *fakeQueue) Items(context.Context) []mail.ItemStatus      { return q.items }
func (q *fakeQueue) ErrorItems(context.Context) []mail.ItemStatus { return q.errItems }
func (q *fakeQueue) Resend() (int, error)                         { return q.resent, q.resendErr }
func (q *fakeQueue) IsEnabled() bool                              { return !q.disabled }

func newTestServer(t *testing.T, cfg config.Config, q MailQueue) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := NewServer(zaptest.NewLogger(t), cfg)
	t.Cleanup(s.Close)
	require.NoError(t, s.RegisterAll([]APIController{NewMailQueueController(q, system.NewTestLogger())}))
	return s
}

func do(s *Server, method, path string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestMailQueueItems(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	q := &fakeQueue{items: []mail.ItemStatus{{ID: "a", Subject: "[Tracker] (ABC-1) Broken", State: mail.StatePending, CreatedAt: created}}}
	s := newTestServer(t, config.Config{}, q)

	w := do(s, http.MethodGet, "/admin/mailqueue")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Enabled bool `json:"enabled"`
		Count   int  `json:"count"`
		Items   []struct {
			ID      string `json:"id"`
			Subject string `json:"subject"`
			State   string `json:"state"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "a", resp.Items[0].ID)
	assert.Equal(t, "[Tracker] (ABC-1) Broken", resp.Items[0].Subject)
	assert.Equal(t, "pending", resp.Items[0].State)
}

func TestMailQueueErrorItems(t *testing.T) {
	q := &fakeQueue{errItems: []mail.ItemStatus{{ID: "b", State: mail.StateFailed, LastError: "connection refused"}}, disabled: true}
	s := newTestServer(t, config.Config{}, q)

	w := do(s, http.MethodGet, "/admin/mailqueue/errors")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enabled":false`)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMailQueueResend(t *testing.T) {
	tests := []struct {
		name     string
		resent   int
		err      error
		wantCode int
	}{
		{"resent", 3, nil, http.StatusOK},
		{"queue closed", 0, mail.ErrQueueClosed, http.StatusServiceUnavailable},
		{"queue full", 1, mail.ErrQueueFull, http.StatusTooManyRequests},
		{"other error", 0, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, config.Config{}, &fakeQueue{resent: tt.resent, resendErr: tt.err})
			w := do(s, http.MethodPost, "/admin/mailqueue/errors/resend")
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.err == nil {
				assert.JSONEq(t, `{"resent":3}`, w.Body.String())
			}
		})
	}
}

func TestAdminBasicAuth(t *testing.T) {
	cfg := config.Config{Server: config.Server{AdminUser: "admin", AdminPassword: "secret"}}
	s := newTestServer(t, cfg, &fakeQueue{})

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/admin/mailqueue").Code)
	w := do(s, http.MethodGet, "/admin/mailqueue", func(r *http.Request) { r.SetBasicAuth("admin", "secret") })
	assert.Equal(t, http.StatusOK, w.Code)

	// metrics and health stay public
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz").Code)
}

func TestAdminRateLimit(t *testing.T) {
	cfg := config.Config{Server: config.Server{RateLimit: config.RateLimit{RequestsPerSecond: 1, Burst: 2}}}
	s := newTestServer(t, cfg, &fakeQueue{})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/admin/mailqueue").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/admin/mailqueue").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodGet, "/admin/mailqueue").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz").Code)

	unlimited := newTestServer(t, config.Config{Server: config.Server{RateLimit: config.RateLimit{Disabled: true}}}, &fakeQueue{})
	for i := 0; i < 100; i++ {
		require.Equal(t, http.StatusOK, do(unlimited, http.MethodGet, "/admin/mailqueue").Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, config.Config{}, &fakeQueue{})
	w := do(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestListenShutsDownOnCancel(t *testing.T) {
	cfg := config.Config{Server: config.Server{ListenAddress: "127.0.0.1:0"}}
	s := newTestServer(t, cfg, &fakeQueue{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Listen(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
