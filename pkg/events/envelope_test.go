package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/issuemail/pkg/domain"
)

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{
		"type": "issue_commented",
		"issueId": 100,
		"commentId": 5,
		"origin": "user-action",
		"userName": "fred",
		"params": {"baseurl": "x"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "issue_commented", env.Type)
	assert.Equal(t, int64(100), env.IssueID)
	assert.Equal(t, int64(5), env.CommentID)
	assert.Equal(t, "fred", env.UserName)
	assert.Equal(t, KindIssue, env.Kind())
	assert.Equal(t, "x", env.Params["baseurl"])
}

func TestDecodeChangeLog(t *testing.T) {
	env, err := Decode([]byte(`{
		"type": "issue_updated",
		"issueId": 100,
		"changelog": {"id": 12, "author": "wilma", "items": [
			{"field": "status", "fieldType": "jira", "from": "Open", "to": "Closed"}
		]}
	}`))
	require.NoError(t, err)
	require.NotNil(t, env.ChangeLog)
	assert.Equal(t, int64(12), env.ChangeLog.ID)
	assert.Equal(t, "wilma", env.ChangeLog.Author)
	assert.Equal(t, []ChangeItem{{Field: "status", FieldType: "jira", From: "Open", To: "Closed"}}, env.ChangeLog.Items)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"type":`},
		{"missing type", `{"issueId": 1}`},
		{"unknown type", `{"type": "project_archived"}`},
		{"issue without id", `{"type": "issue_created"}`},
		{"mention without comment", `{"type": "issue_mentioned", "issueId": 1}`},
		{"subscription without id", `{"type": "filter_subscription"}`},
		{"user without name", `{"type": "user_signup"}`},
		{"bad format", `{"type": "issue_created", "issueId": 1, "format": "pdf"}`},
		{"changelog item without field", `{"type": "issue_updated", "issueId": 1, "changelog": {"items": [{"to": "Closed"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEnvelopeKind(t *testing.T) {
	tests := map[string]Kind{
		"issue_created":        KindIssue,
		"issue_worklogged":     KindIssue,
		"issue_mentioned":      KindMention,
		"filter_subscription":  KindSubscription,
		"user_forgot_password": KindUser,
		"something_else":       KindUnknown,
	}
	for typ, want := range tests {
		assert.Equal(t, want, Envelope{Type: typ}.Kind(), typ)
	}
}

func TestRecipientFormat(t *testing.T) {
	f, err := Envelope{}.RecipientFormat()
	require.NoError(t, err)
	assert.Equal(t, domain.FormatHTML, f)

	f, err = Envelope{Format: "TEXT"}.RecipientFormat()
	require.NoError(t, err)
	assert.Equal(t, domain.FormatText, f)
}
