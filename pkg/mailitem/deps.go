// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package mailitem

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/metrics"
	"github.com/telekom/issuemail/pkg/notification"
	"github.com/telekom/issuemail/pkg/templatecontext"
	"github.com/telekom/issuemail/pkg/visibility"
)

// Templates renders mail templates and reports which variants exist.
type Templates interface {
	notification.Renderer
	Exists(name string, format domain.Format) bool
}

// Deps are the collaborators shared by every item.
type Deps struct {
	Templates   Templates
	Assembler   *templatecontext.Assembler
	MailingList *notification.MailingListCompiler
	Servers     mail.ServerResolver
	Threader    *mail.Threader
	Users       domain.UserManager
	Groups      domain.GroupManager
	Permissions domain.PermissionManager
	Filters     domain.FilterManager
	Visibility  visibility.Checker
	Log         *zap.SugaredLogger
}

// Builder creates issue items for the notification compiler.
type Builder struct {
	deps Deps
}

func NewBuilder(deps Deps) *Builder {
	return &Builder{deps: deps}
}

func (b *Builder) IssueItem(cell notification.Cell) mail.Item {
	return NewIssueItem(b.deps, cell)
}

func newID() string {
	return uuid.NewString()
}

// sender resolves the SMTP sender. ok is false when delivery must be skipped.
func (d Deps) sender(id string, log *zap.SugaredLogger) (mail.Sender, bool) {
	s, err := d.Servers.Sender()
	if err != nil {
		if errors.Is(err, mail.ErrNoServer) {
			log.Warnw("No mail server configured, skipping item", "id", id)
			metrics.SendsSkipped.WithLabelValues("no-server").Inc()
		} else {
			log.Errorw("Resolving mail server failed, skipping item", "id", id, "error", err)
			metrics.SendsSkipped.WithLabelValues("server-error").Inc()
		}
		return nil, false
	}
	return s, true
}

// current reloads user recipients so that accounts deleted after the item was
// queued are skipped. Bare addresses pass through.
func (d Deps) current(ctx context.Context, recipients []domain.Recipient, log *zap.SugaredLogger) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if !r.IsUser() {
			out = append(out, r)
			continue
		}
		u, err := d.Users.UserByName(ctx, r.User().Name)
		if err != nil {
			log.Warnw("Looking up recipient failed, skipping", "user", r.User().Name, "error", err)
			metrics.SendsSkipped.WithLabelValues("user-lookup").Inc()
			continue
		}
		if u == nil {
			log.Infow("Recipient no longer exists, skipping", "user", r.User().Name)
			metrics.SendsSkipped.WithLabelValues("deleted-user").Inc()
			continue
		}
		out = append(out, domain.NewUserRecipient(u, r.Format()))
	}
	return out
}

// browsable keeps the recipients allowed to browse issue right now.
func (d Deps) browsable(ctx context.Context, issue *domain.Issue, recipients []domain.Recipient, log *zap.SugaredLogger) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(recipients))
	for _, r := range recipients {
		ok, err := d.Permissions.CanBrowse(ctx, r.User(), issue)
		if err != nil {
			log.Warnw("Browse permission check failed, skipping recipient", "recipient", r.String(), "error", err)
			continue
		}
		if !ok {
			log.Debugw("Recipient can no longer browse issue", "recipient", r.String())
			metrics.SendsSkipped.WithLabelValues("no-permission").Inc()
			continue
		}
		out = append(out, r)
	}
	return out
}

// subject renders a preview subject in the locale of the first recipient.
func (d Deps) subject(tmpl notification.TemplateRef, params templatecontext.Params, recipients []domain.Recipient) string {
	locale := ""
	if len(recipients) > 0 {
		locale = recipients[0].Locale()
	}
	return d.MailingList.Subject(tmpl, d.Assembler.BaseParams(locale).With(params), locale)
}

// byFormat splits recipients by format, formats in a fixed order.
func byFormat(recipients []domain.Recipient) map[domain.Format][]domain.Recipient {
	out := map[domain.Format][]domain.Recipient{}
	for _, r := range recipients {
		out[r.Format()] = append(out[r.Format()], r)
	}
	return out
}

var formatOrder = []domain.Format{domain.FormatHTML, domain.FormatText}
