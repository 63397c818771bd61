package mailitem

import (
	"context"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/notification"
)

var userTemplates = map[domain.UserEventType]string{
	domain.UserSignup:         "usersignup",
	domain.UserCreated:        "usercreated",
	domain.UserForgotPassword: "forgotpassword",
	domain.UserForgotUsername: "forgotusername",
}

// UserTemplate returns the template for a user event type.
func UserTemplate(t domain.UserEventType) (notification.TemplateRef, bool) {
	name, ok := userTemplates[t]
	return notification.TemplateRef{Name: name}, ok
}

// UserItem mails a user about their own account. The HTML variant of the
// template is used when one exists.
type UserItem struct {
	deps      Deps
	id        string
	event     *domain.UserEvent
	template  notification.TemplateRef
	recipient domain.Recipient
	log       *zap.SugaredLogger
}

func NewUserItem(deps Deps, event *domain.UserEvent, tmpl notification.TemplateRef, recipient domain.Recipient) *UserItem {
	id := newID()
	return &UserItem{
		deps:      deps,
		id:        id,
		event:     event,
		template:  tmpl,
		recipient: recipient,
		log:       deps.Log.Named("user-item").With("id", id, "event", event.Type, "template", tmpl.Name),
	}
}

func (u *UserItem) ID() string { return u.id }

// Format is HTML when the template has an HTML variant, text otherwise.
func (u *UserItem) Format() domain.Format {
	if u.deps.Templates.Exists(u.template.Name, domain.FormatHTML) {
		return domain.FormatHTML
	}
	return domain.FormatText
}

// MimeType follows Format.
func (u *UserItem) MimeType() string {
	return u.Format().MimeType()
}

func (u *UserItem) Subject(context.Context) string {
	return u.deps.subject(u.template, u.deps.Assembler.UserParams(u.event), []domain.Recipient{u.recipient})
}

func (u *UserItem) Send(ctx context.Context) error {
	sender, ok := u.deps.sender(u.id, u.log)
	if !ok {
		return nil
	}
	recipients := u.deps.current(ctx, []domain.Recipient{u.recipient}, u.log)
	if len(recipients) == 0 {
		return nil
	}
	err := u.deps.MailingList.Send(ctx, sender, notification.Message{
		Template:   u.template,
		Format:     u.Format(),
		Recipients: recipients,
		Params:     u.deps.Assembler.UserParams(u.event),
	})
	if err != nil {
		return mail.NewError("send", u.id, err)
	}
	u.log.Infow("User mail sent", "recipient", u.recipient.String())
	return nil
}
