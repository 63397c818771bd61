package mail

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/system"
)

type legacyTable struct {
	ids map[string]int64
	err error
}

func (l legacyTable) IssueIDForMessageID(_ context.Context, messageID string) (int64, bool, error) {
	if l.err != nil {
		return 0, false, l.err
	}
	id, ok := l.ids[messageID]
	return id, ok, nil
}

func testIssue(id int64) *domain.Issue {
	return &domain.Issue{ID: id, Key: "ABC-1", Created: time.UnixMilli(1700000000000)}
}

func TestThreaderMessageID(t *testing.T) {
	th := NewThreader("example.com", nil, system.NewTestLogger())
	issue := testIssue(10010)

	assert.Equal(t, "<JIRA.10010.1700000000000@example.com>", th.RootID(issue))

	id := th.MessageID(issue, 3)
	assert.Regexp(t, regexp.MustCompile(`^<JIRA\.10010\.1700000000000\.[0-9a-f]{32}\.3@example\.com>$`), id)

	other := NewThreader("example.com", nil, system.NewTestLogger())
	assert.NotEqual(t, id, other.MessageID(issue, 3), "instances must not collide")
}

func TestThreaderSequence(t *testing.T) {
	th := NewThreader("example.com", nil, system.NewTestLogger())

	assert.Equal(t, int64(1), th.NextSequence(1))
	assert.Equal(t, int64(2), th.NextSequence(1))
	assert.Equal(t, int64(1), th.NextSequence(2))
}

func TestThreaderSequenceConcurrent(t *testing.T) {
	th := NewThreader("example.com", nil, system.NewTestLogger())

	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq := th.NextSequence(7)
			_, dup := seen.LoadOrStore(seq, true)
			assert.False(t, dup, "sequence %d handed out twice", seq)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(51), th.NextSequence(7))
}

func TestIssueForReply(t *testing.T) {
	legacy := legacyTable{ids: map[string]int64{"<old-1@example.com>": 42, "<old-2@example.com>": 43}}
	th := NewThreader("example.com", legacy, system.NewTestLogger())
	own := th.MessageID(testIssue(99), 1)

	tests := []struct {
		name    string
		headers Headers
		want    int64
		found   bool
	}{
		{"own id in references", Headers{"References": {own}}, 99, true},
		{"root id in in-reply-to", Headers{"In-Reply-To": {"<JIRA.77.1700000000000@example.com>"}}, 77, true},
		{"references before in-reply-to", Headers{
			"In-Reply-To": {"<old-2@example.com>"},
			"References":  {"<unknown@x> <old-1@example.com>"},
		}, 42, true},
		{"first reference wins", Headers{"References": {"<old-2@example.com> <old-1@example.com>"}}, 43, true},
		{"falls back to in-reply-to", Headers{
			"References":  {"<unknown@x>"},
			"In-Reply-To": {"<old-1@example.com>"},
		}, 42, true},
		{"header names are case insensitive", Headers{"in-reply-to": {"<old-2@example.com>"}}, 43, true},
		{"domain is case insensitive", Headers{"References": {"<JIRA.78.1700000000000@Example.COM>"}}, 78, true},
		{"other installation is skipped", Headers{
			"References":  {"<JIRA.99.1700000000000@elsewhere.org>"},
			"In-Reply-To": {"<old-1@example.com>"},
		}, 42, true},
		{"other installation instance id", Headers{"References": {"<JIRA.99.1700000000000.0123456789abcdef0123456789abcdef.3@elsewhere.org>"}}, 0, false},
		{"nothing matches", Headers{"References": {"<unknown@x>"}}, 0, false},
		{"no headers", Headers{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := th.IssueForReply(context.Background(), tt.headers)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIssueForReplyLegacyError(t *testing.T) {
	th := NewThreader("example.com", legacyTable{err: errors.New("db down")}, system.NewTestLogger())

	_, ok := th.IssueForReply(context.Background(), Headers{"References": {"<old-1@example.com>"}})
	assert.False(t, ok)

	id, ok := th.IssueForReply(context.Background(), Headers{"References": {"<old-1@example.com> <JIRA.5.1@example.com>"}})
	require.True(t, ok)
	assert.Equal(t, int64(5), id)
}
