package templatecontext

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/issuemail/pkg/auth"
	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/domain/memstore"
	"github.com/telekom/issuemail/pkg/system"
)

type failingRenderer struct{ panics bool }

func (f failingRenderer) Render(string) (string, error) {
	if f.panics {
		panic("renderer exploded")
	}
	return "", errors.New("renderer unavailable")
}

func testConfig() config.Config {
	cfg := config.Config{
		Frontend: config.Frontend{
			BaseURL:      "https://issues.example.com/",
			ContextPath:  "/jira",
			BrandingName: "Example",
		},
	}
	cfg.Defaults()
	return cfg
}

func testIssue() *domain.Issue {
	return &domain.Issue{
		ID:       10,
		Key:      "ABC-10",
		Summary:  "Printer on fire",
		Project:  &domain.Project{ID: 1, Key: "ABC", Name: "Alphabet"},
		Status:   "Open",
		Security: &domain.SecurityLevel{ID: 3, Name: "Internal"},
		Attachments: []domain.Attachment{
			{ID: 1, Filename: "smoke.png"},
		},
	}
}

func TestBaseParams(t *testing.T) {
	a := NewAssembler(testConfig(), NewGoldmarkRenderer(), nil, system.NewTestLogger())
	p := a.BaseParams("de-DE")

	for _, key := range []string{KeyI18n, KeyDateFormatter, KeyLookAndFeel, KeyBaseURL, KeyApplicationTitle} {
		assert.True(t, p.Has(key), "missing base key %s", key)
	}
	assert.Equal(t, "https://issues.example.com", p[KeyBaseURL])
	assert.Equal(t, "de", p[KeyI18n].(*I18nHelper).Locale())
	assert.Equal(t, "Example", p[KeyApplicationTitle])
}

func TestIssueParams(t *testing.T) {
	a := NewAssembler(testConfig(), NewGoldmarkRenderer(), nil, system.NewTestLogger())
	actor := &domain.User{Name: "fred", DisplayName: "Fred Flintstone"}
	event := &domain.IssueEvent{
		Type:            domain.IssueCommentEdited,
		Issue:           testIssue(),
		Actor:           actor,
		Comment:         &domain.Comment{ID: 1, Body: "now **bold**", Visibility: domain.GroupVisibility("jira-developers")},
		OriginalComment: &domain.Comment{ID: 1, Body: "was plain", Visibility: domain.GroupVisibility("jira-users")},
		ChangeLog:       &domain.ChangeLog{ID: 5, Author: actor, Items: []domain.ChangeItem{{Field: "status", From: "Open", To: "Closed"}}},
		Params:          map[string]any{"baseurl": "ignored"},
	}

	p := a.IssueParams(event)

	view := p[KeyIssue].(IssueView)
	assert.Equal(t, "https://issues.example.com/browse/ABC-10", view.URL())
	assert.Equal(t, "Alphabet", view.ProjectName())
	assert.Same(t, event.Issue, view.Issue())
	assert.Equal(t, "Fred Flintstone", p[KeyRemoteUser].(*UserView).DisplayName)
	assert.Contains(t, p[KeyHTMLComment], "<strong>bold</strong>")
	assert.Contains(t, p[KeyOriginalHTMLComment], "was plain")
	assert.Equal(t, event.OriginalComment, p[KeyOriginalComment])
	assert.Equal(t, event.ChangeLog, p[KeyChangeLog])
	assert.Equal(t, event.Issue.Security, p[KeySecurity])
	assert.Len(t, p[KeyAttachments], 1)
	assert.IsType(t, DiffHelper{}, p[KeyDiffUtils])
}

func TestIssueParamsWorklogFlags(t *testing.T) {
	a := NewAssembler(testConfig(), NewGoldmarkRenderer(), nil, system.NewTestLogger())
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	event := &domain.IssueEvent{
		Type:            domain.IssueWorklogUpdated,
		Issue:           testIssue(),
		Worklog:         &domain.Worklog{ID: 1, TimeSpent: 2 * time.Hour, StartDate: start, Comment: "fixed", Visibility: domain.RoleVisibility("Developers")},
		OriginalWorklog: &domain.Worklog{ID: 1, TimeSpent: time.Hour, StartDate: start, Comment: "fixed"},
	}

	p := a.IssueParams(event)
	assert.Equal(t, true, p[KeyTimeSpentUpdated])
	assert.Equal(t, false, p[KeyStartDateUpdated])
	assert.Equal(t, false, p[KeyCommentUpdated])
	assert.Equal(t, true, p[KeyVisibilityUpdated])
	assert.True(t, p.Has(KeyHTMLWorklog))
	assert.True(t, p.Has(KeyOriginalHTMLWorklog))
}

func TestRenderMarkupFallsBack(t *testing.T) {
	for name, r := range map[string]MarkupRenderer{
		"error": failingRenderer{},
		"panic": failingRenderer{panics: true},
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			a := NewAssembler(testConfig(), r, nil, system.NewTestLogger())
			out := a.RenderMarkup("comment", "see https://example.com/x <b>now</b>")
			assert.Equal(t, `see <a href="https://example.com/x">https://example.com/x</a> &lt;b&gt;now&lt;/b&gt;`, out)
		})
	}
}

func TestUserParams(t *testing.T) {
	a := NewAssembler(testConfig(), nil, nil, system.NewTestLogger())
	p := a.UserParams(&domain.UserEvent{
		Type:   domain.UserSignup,
		User:   &domain.User{Name: "wilma", Email: "wilma@example.com"},
		Params: map[string]any{"password": "secret"},
	})
	assert.Equal(t, "wilma", p[KeyUser].(*UserView).Name)
	assert.Equal(t, "Example", p[KeyApplicationName])
	assert.Equal(t, map[string]any{"password": "secret"}, p[KeyParams])
}

func subscriptionFixture(t *testing.T, props map[string]string, issues int) (*Assembler, *domain.Subscription, *domain.Filter) {
	t.Helper()
	store := memstore.New()
	ids := make([]int64, 0, issues)
	for i := 1; i <= issues; i++ {
		store.AddIssue(&domain.Issue{ID: int64(i), Key: fmt.Sprintf("ABC-%d", i), Summary: "issue"})
		ids = append(ids, int64(i))
	}
	filter := store.AddFilter(&domain.Filter{ID: 7, Name: "My open issues"}, ids...)
	cfg := testConfig()
	cfg.Properties = props
	a := NewAssembler(cfg, nil, store, system.NewTestLogger())
	return a, &domain.Subscription{ID: 1, FilterID: filter.ID}, filter
}

func TestSubscriptionParams(t *testing.T) {
	a, sub, filter := subscriptionFixture(t, map[string]string{config.PropMailMaxIssues: "3"}, 5)
	ctx := auth.WithUser(context.Background(), &domain.User{Name: "fred"})

	res, err := a.SubscriptionParams(ctx, sub, filter, "en")
	require.NoError(t, err)

	assert.Equal(t, 5, res.Params[KeyTotalIssueCount])
	assert.Equal(t, 3, res.Params[KeyActualIssueCount])
	assert.Len(t, res.Params[KeyIssues], 3)
	table := string(res.Params[KeyIssueTableHTML].(template.HTML))
	assert.Contains(t, table, `class="issuetable"`)
	assert.Contains(t, table, "https://issues.example.com/browse/ABC-1")
	assert.Contains(t, table, "Unassigned")
	req := res.Params[KeyRequest].(Request)
	assert.Equal(t, "/jira", req.ContextPath())
	assert.Equal(t, "/jira/secure/IssueNavigator.jspa", req.RequestURI())
	assert.Equal(t, "", req.Header("User-Agent"))
	assert.Nil(t, res.Params[KeySubscriber])
	assert.NotContains(t, res.Params, KeyEditSubscriptionURL)
}

func TestSubscriptionParamsOwnerMayEdit(t *testing.T) {
	a, sub, filter := subscriptionFixture(t, nil, 1)
	owner := &domain.User{Name: "wilma", DisplayName: "Wilma Flintstone"}
	sub.Owner = owner

	res, err := a.SubscriptionParams(auth.WithUser(context.Background(), owner), sub, filter, "en")
	require.NoError(t, err)
	assert.Equal(t, "Wilma Flintstone", res.Params[KeySubscriber].(*UserView).DisplayName)
	assert.Equal(t, "https://issues.example.com/secure/FilterSubscription!default.jspa?subId=1&filterId=7", res.Params[KeyEditSubscriptionURL])

	res, err = a.SubscriptionParams(auth.WithUser(context.Background(), &domain.User{Name: "barney"}), sub, filter, "en")
	require.NoError(t, err)
	assert.Equal(t, "Wilma Flintstone", res.Params[KeySubscriber].(*UserView).DisplayName)
	assert.NotContains(t, res.Params, KeyEditSubscriptionURL)
}

func TestSubscriptionParamsMissingFilter(t *testing.T) {
	a, sub, _ := subscriptionFixture(t, nil, 1)
	_, err := a.SubscriptionParams(context.Background(), sub, nil, "en")
	assert.Error(t, err)
}

func TestSubscriptionParamsNilSubscriptionPanics(t *testing.T) {
	a, _, filter := subscriptionFixture(t, nil, 1)
	assert.PanicsWithValue(t, ErrNilSubscription, func() {
		_, _ = a.SubscriptionParams(context.Background(), nil, filter, "en")
	})
}

func TestMaxIssues(t *testing.T) {
	tests := []struct {
		name  string
		props config.Properties
		want  int
	}{
		{"unset", config.StaticProperties{}, DefaultMaxIssues},
		{"nil source", nil, DefaultMaxIssues},
		{"zero is invalid", config.StaticProperties{config.PropMailMaxIssues: "0"}, DefaultMaxIssues},
		{"garbage", config.StaticProperties{config.PropMailMaxIssues: "lots"}, DefaultMaxIssues},
		{"explicit", config.StaticProperties{config.PropMailMaxIssues: "50"}, 50},
		{"negative is unbounded", config.StaticProperties{config.PropMailMaxIssues: "-1"}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxIssues(tt.props))
		})
	}
}
