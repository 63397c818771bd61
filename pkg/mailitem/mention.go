package mailitem

import (
	"context"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/notification"
	"github.com/telekom/issuemail/pkg/system"
	"github.com/telekom/issuemail/pkg/templatecontext"
)

// MentionTemplate is the template mention mails are rendered with.
var MentionTemplate = notification.TemplateRef{Name: "mention"}

// MentionItem notifies users mentioned in a comment. The comment keeps its raw
// markup until the item is sent.
type MentionItem struct {
	deps       Deps
	id         string
	issue      *domain.Issue
	comment    *domain.Comment
	author     *domain.User
	recipients []domain.Recipient
	log        *zap.SugaredLogger

	delivered notification.Deliveries
}

func NewMentionItem(deps Deps, issue *domain.Issue, comment *domain.Comment, author *domain.User, mentioned []domain.Recipient) *MentionItem {
	id := newID()
	return &MentionItem{
		deps:       deps,
		id:         id,
		issue:      issue,
		comment:    comment,
		author:     author,
		recipients: mentioned,
		log:        deps.Log.Named("mention-item").With(system.IssueFields(issue.ID, issue.Key)...).With("id", id),
	}
}

func (m *MentionItem) ID() string { return m.id }

func (m *MentionItem) Subject(context.Context) string {
	return m.deps.subject(MentionTemplate, m.params(false), m.recipients)
}

func (m *MentionItem) params(withBody bool) templatecontext.Params {
	p := m.deps.Assembler.IssueParams(&domain.IssueEvent{
		Type:  domain.IssueCommented,
		Issue: m.issue,
		Actor: m.author,
	})
	p[templatecontext.KeyParams] = map[string]any{"mention": m.comment.Body}
	if withBody {
		p[templatecontext.KeyMentionHTML] = m.deps.Assembler.RenderMarkup("mention", m.comment.Body)
	}
	return p
}

// Send delivers the mention to recipients that may still browse the issue and
// see the comment.
func (m *MentionItem) Send(ctx context.Context) error {
	sender, ok := m.deps.sender(m.id, m.log)
	if !ok {
		return nil
	}
	recipients := m.deps.current(ctx, m.recipients, m.log)
	recipients = m.deps.browsable(ctx, m.issue, recipients, m.log)
	visible := recipients[:0]
	for _, r := range recipients {
		if m.deps.Visibility.HasVisibility(ctx, m.comment.Visibility, r, m.issue) {
			visible = append(visible, r)
		}
	}
	if len(visible) == 0 {
		m.log.Infow("No mentioned user may see the comment, skipping")
		return nil
	}

	params := m.params(true)
	th := m.deps.Threader
	root := th.RootID(m.issue)
	groups := byFormat(visible)
	for _, f := range formatOrder {
		rs := groups[f]
		if len(rs) == 0 {
			continue
		}
		err := m.deps.MailingList.Send(ctx, sender, notification.Message{
			Template:      MentionTemplate,
			Format:        f,
			Recipients:    rs,
			Params:        params,
			NextMessageID: func() string { return th.MessageID(m.issue, th.NextSequence(m.issue.ID)) },
			InReplyTo:     root,
			References:    []string{root},
			Delivered:     &m.delivered,
		})
		if err != nil {
			return mail.NewError("send", m.id, err)
		}
	}
	m.log.Infow("Mention sent", "recipients", len(visible))
	return nil
}
