package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/domain/memstore"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/system"
)

func TestResolveReply(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memstore.New()
	store.AddMessageID("<legacy-1@example.com>", 42)
	threader := mail.NewThreader("example.com", store, system.NewTestLogger())
	issue := &domain.Issue{ID: 100, Key: "ABC-1", Created: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	s := NewServer(zaptest.NewLogger(t), config.Config{})
	t.Cleanup(s.Close)
	require.NoError(t, s.RegisterAll([]APIController{NewReplyController(threader, system.NewTestLogger())}))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/replies/resolve", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		return w
	}

	w := post(`{"headers": {"In-Reply-To": ["` + threader.MessageID(issue, 3) + `"]}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"found": true, "issueId": 100}`, w.Body.String())

	w = post(`{"headers": {"references": ["<legacy-1@example.com>"]}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"found": true, "issueId": 42}`, w.Body.String())

	w = post(`{"headers": {"In-Reply-To": ["<unknown@elsewhere>"]}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"found": false}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, post(`{`).Code)
}
