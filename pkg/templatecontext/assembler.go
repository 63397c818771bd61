/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package templatecontext

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/auth"
	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/metrics"
)

// ErrNilSubscription is the panic value for subscription assembly without a subscription.
var ErrNilSubscription = errors.New("subscription context requires a subscription")

var (
	//go:embed templates/issuetable.html
	issueTableRaw      string
	issueTableTemplate = template.Must(template.New("issuetable").Parse(issueTableRaw))
)

// Assembler builds template contexts. It is safe for concurrent use.
type Assembler struct {
	frontend     config.Frontend
	notification config.Notification
	props        config.Properties
	markup       MarkupRenderer
	searcher     domain.IssueSearcher
	dates        DateFormatter
	log          *zap.SugaredLogger
}

func NewAssembler(cfg config.Config, markup MarkupRenderer, searcher domain.IssueSearcher, log *zap.SugaredLogger) *Assembler {
	return &Assembler{
		frontend:     cfg.Frontend,
		notification: cfg.Notification,
		props:        config.StaticProperties(cfg.Properties),
		markup:       markup,
		searcher:     searcher,
		dates:        NewDateFormatter(cfg.Notification.Location(), cfg.Notification.DateTimeFormat),
		log:          log.Named("template-context"),
	}
}

// WithProperties replaces the application property source.
func (a *Assembler) WithProperties(props config.Properties) *Assembler {
	a.props = props
	return a
}

func (a *Assembler) BaseURL() string {
	return strings.TrimRight(a.frontend.BaseURL, "/")
}

// I18n returns a helper for locale, falling back to the configured default.
func (a *Assembler) I18n(locale string) *I18nHelper {
	if locale == "" {
		locale = a.notification.DefaultLocale
	}
	return NewI18nHelper(locale)
}

// BaseParams are present in every context.
func (a *Assembler) BaseParams(locale string) Params {
	return Params{
		KeyI18n:             a.I18n(locale),
		KeyDateFormatter:    a.dates,
		KeyLookAndFeel:      NewLookAndFeel(a.frontend),
		KeyBaseURL:          a.BaseURL(),
		KeyApplicationTitle: a.frontend.ApplicationTitle,
	}
}

// RecipientParams adds the recipient to the base parameters for its locale.
func (a *Assembler) RecipientParams(r domain.Recipient) Params {
	p := a.BaseParams(r.Locale())
	p[KeyRecipient] = NewUserView(r.User(), a.BaseURL())
	return p
}

// IssueParams holds everything an issue event exposes. The result contains the
// restricted comment and worklog keys; callers strip them per trust level.
func (a *Assembler) IssueParams(event *domain.IssueEvent) Params {
	p := Params{
		KeyIssue:      NewIssueView(event.Issue, a.BaseURL()),
		KeyEventType:  string(event.Type),
		KeyParams:     event.Params,
		KeyRemoteUser: NewUserView(event.Actor, a.BaseURL()),
		KeyDiffUtils:  DiffHelper{},
	}
	if event.Issue != nil {
		p[KeyAttachments] = event.Issue.Attachments
		if event.Issue.Security != nil {
			p[KeySecurity] = event.Issue.Security
		}
	}
	if event.ChangeLog != nil {
		p[KeyChangeLog] = event.ChangeLog
		p[KeyChangeLogAuthor] = NewUserView(event.ChangeLog.Author, a.BaseURL())
	}
	a.addComment(p, event)
	a.addWorklog(p, event)
	return p
}

func (a *Assembler) addComment(p Params, event *domain.IssueEvent) {
	if c := event.Comment; c != nil {
		p[KeyComment] = c
		p[KeyHTMLComment] = a.RenderMarkup("comment", c.Body)
	}
	if c := event.OriginalComment; c != nil {
		p[KeyOriginalComment] = c
		p[KeyOriginalHTMLComment] = a.RenderMarkup("comment", c.Body)
	}
}

func (a *Assembler) addWorklog(p Params, event *domain.IssueEvent) {
	cur, orig := event.Worklog, event.OriginalWorklog
	if cur != nil {
		p[KeyWorklog] = cur
		p[KeyHTMLWorklog] = a.RenderMarkup("worklog", cur.Comment)
	}
	if orig != nil {
		p[KeyOriginalWorklog] = orig
		p[KeyOriginalHTMLWorklog] = a.RenderMarkup("worklog", orig.Comment)
	}
	if cur != nil && orig != nil {
		p[KeyTimeSpentUpdated] = cur.TimeSpent != orig.TimeSpent
		p[KeyStartDateUpdated] = !cur.StartDate.Equal(orig.StartDate)
		p[KeyCommentUpdated] = cur.Comment != orig.Comment
		p[KeyVisibilityUpdated] = cur.Visibility != orig.Visibility
	}
}

// RenderMarkup renders comment markup to HTML. Renderer errors and panics
// degrade to FallbackHTML.
func (a *Assembler) RenderMarkup(kind, source string) (out string) {
	if a.markup == nil {
		return FallbackHTML(source)
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.Warnw("Markup renderer panicked, using plain rendering", "kind", kind, "panic", r)
			metrics.RenderFallbacks.WithLabelValues(kind).Inc()
			out = FallbackHTML(source)
		}
	}()
	rendered, err := a.markup.Render(source)
	if err != nil {
		a.log.Warnw("Markup rendering failed, using plain rendering", "kind", kind, "error", err)
		metrics.RenderFallbacks.WithLabelValues(kind).Inc()
		return FallbackHTML(source)
	}
	return rendered
}

// UserParams holds everything a user lifecycle event exposes.
func (a *Assembler) UserParams(event *domain.UserEvent) Params {
	return Params{
		KeyUser:            NewUserView(event.User, a.BaseURL()),
		KeyParams:          event.Params,
		KeyApplicationName: a.frontend.ApplicationTitle,
		KeyEventType:       string(event.Type),
	}
}

// SubscriptionResult is the outcome of running a subscription's filter.
type SubscriptionResult struct {
	Params  Params
	Results domain.SearchResults
}

// SubscriptionParams runs the filter as the acting user in ctx and exposes the
// page of results. A nil subscription is a programming error and panics.
func (a *Assembler) SubscriptionParams(ctx context.Context, sub *domain.Subscription, filter *domain.Filter, locale string) (SubscriptionResult, error) {
	if sub == nil {
		panic(ErrNilSubscription)
	}
	if filter == nil {
		return SubscriptionResult{}, fmt.Errorf("subscription %d: filter %d not found", sub.ID, sub.FilterID)
	}
	limit := MaxIssues(a.props)
	results, err := a.searcher.Search(ctx, filter, limit)
	if err != nil {
		return SubscriptionResult{}, fmt.Errorf("subscription %d: searching filter %d: %w", sub.ID, filter.ID, err)
	}

	views := make([]IssueView, 0, len(results.Issues))
	for _, issue := range results.Issues {
		views = append(views, NewIssueView(issue, a.BaseURL()))
	}

	p := Params{
		KeySubscription:     sub,
		KeyFilter:           filter,
		KeyIssues:           views,
		KeyTotalIssueCount:  results.Total,
		KeyActualIssueCount: len(results.Issues),
		KeyRequest:          NewRequest(a.frontend.ContextPath),
		KeyIssueTableHTML:   a.issueTable(views, locale),
		KeySubscriber:       NewUserView(sub.Owner, a.BaseURL()),
	}
	if u := auth.UserFrom(ctx); u != nil && sub.Owner != nil && u.Name == sub.Owner.Name {
		p[KeyEditSubscriptionURL] = fmt.Sprintf("%s/secure/FilterSubscription!default.jspa?subId=%d&filterId=%d", a.BaseURL(), sub.ID, filter.ID)
	}
	return SubscriptionResult{Params: p, Results: results}, nil
}

func (a *Assembler) issueTable(views []IssueView, locale string) template.HTML {
	i18n := a.I18n(locale)
	var buf bytes.Buffer
	err := issueTableTemplate.Execute(&buf, struct {
		Issues     []IssueView
		Dates      DateFormatter
		Unassigned string
	}{views, a.dates, i18n.Text(MsgUnassigned)})
	if err != nil {
		a.log.Warnw("Issue table rendering failed", "error", err)
		metrics.RenderFallbacks.WithLabelValues("issuetable").Inc()
		return template.HTML(template.HTMLEscapeString(i18n.Text(MsgRenderError))) //nolint:gosec // escaped
	}
	return template.HTML(buf.String()) //nolint:gosec // produced by html/template
}
