package mailitem

import (
	"context"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/notification"
	"github.com/telekom/issuemail/pkg/system"
)

// IssueItem delivers one compiled notification cell.
type IssueItem struct {
	deps Deps
	id   string
	cell notification.Cell
	log  *zap.SugaredLogger

	delivered notification.Deliveries
}

func NewIssueItem(deps Deps, cell notification.Cell) *IssueItem {
	id := newID()
	issue := cell.Event.Issue
	return &IssueItem{
		deps: deps,
		id:   id,
		cell: cell,
		log: deps.Log.Named("issue-item").With(system.IssueFields(issue.ID, issue.Key)...).
			With("id", id, "bucket", cell.Bucket, "format", cell.Format),
	}
}

func (i *IssueItem) ID() string { return i.id }

func (i *IssueItem) Cell() notification.Cell { return i.cell }

func (i *IssueItem) Subject(context.Context) string {
	return i.deps.subject(i.cell.Template, i.cell.Params, i.cell.Recipients)
}

// Send re-checks every recipient against the current directory and browse
// permission before fanning the cell out.
func (i *IssueItem) Send(ctx context.Context) error {
	sender, ok := i.deps.sender(i.id, i.log)
	if !ok {
		return nil
	}
	issue := i.cell.Event.Issue
	recipients := i.deps.current(ctx, i.cell.Recipients, i.log)
	recipients = i.deps.browsable(ctx, issue, recipients, i.log)
	if len(recipients) == 0 {
		i.log.Infow("No recipient may receive this notification anymore", "queued", len(i.cell.Recipients))
		return nil
	}

	th := i.deps.Threader
	root := th.RootID(issue)
	err := i.deps.MailingList.Send(ctx, sender, notification.Message{
		Template:      i.cell.Template,
		Format:        i.cell.Format,
		Recipients:    recipients,
		Params:        i.cell.Params,
		NextMessageID: func() string { return th.MessageID(issue, th.NextSequence(issue.ID)) },
		InReplyTo:     root,
		References:    []string{root},
		Delivered:     &i.delivered,
	})
	if err != nil {
		return mail.NewError("send", i.id, err)
	}
	i.log.Infow("Issue notification sent", "recipients", len(recipients))
	return nil
}
