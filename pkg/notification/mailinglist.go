package notification

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/metrics"
	"github.com/telekom/issuemail/pkg/templatecontext"
)

// Styler inlines the mail stylesheet into an HTML body.
type Styler interface {
	ApplyStyles(html *string) (*string, error)
}

// Renderer renders mail bodies and subjects by template name.
type Renderer interface {
	Render(name string, format domain.Format, params map[string]any) (string, error)
	RenderSubject(name string, params map[string]any) (string, error)
}

// Message is one cell ready for fan-out.
type Message struct {
	Template   TemplateRef
	Format     domain.Format
	Recipients []domain.Recipient
	Params     templatecontext.Params
	// NextMessageID yields the Message-ID of each outgoing email. Optional.
	NextMessageID func() string
	InReplyTo     string
	References    []string
	// Delivered skips addresses an earlier attempt already mailed. Optional.
	Delivered *Deliveries
}

// Deliveries records the addresses a message was sent to across attempts so a
// retried item only mails the batches that failed. The zero value is ready to use.
type Deliveries struct {
	mu   sync.Mutex
	sent map[string]struct{}
}

func (d *Deliveries) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

// Has reports whether address was already mailed.
func (d *Deliveries) Has(address string) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sent[address]
	return ok
}

// remaining drops the addresses already delivered.
func (d *Deliveries) remaining(addresses []string) []string {
	if d == nil {
		return addresses
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := d.sent[a]; !ok {
			out = append(out, a)
		}
	}
	return out
}

func (d *Deliveries) add(addresses []string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sent == nil {
		d.sent = make(map[string]struct{}, len(addresses))
	}
	for _, a := range addresses {
		d.sent[a] = struct{}{}
	}
}

// MailingListCompiler renders a message once per recipient locale and sends
// it in Bcc batches.
type MailingListCompiler struct {
	renderer  Renderer
	assembler *templatecontext.Assembler
	styles    Styler
	props     config.Properties
	log       *zap.SugaredLogger
}

func NewMailingListCompiler(renderer Renderer, assembler *templatecontext.Assembler, styles Styler, props config.Properties, log *zap.SugaredLogger) *MailingListCompiler {
	return &MailingListCompiler{
		renderer:  renderer,
		assembler: assembler,
		styles:    styles,
		props:     props,
		log:       log.Named("mailing-list"),
	}
}

// Send renders and sends msg through sender. Recipients without an address
// are skipped, as are those msg.Delivered already holds. Errors are
// *mail.Error values joined together.
func (m *MailingListCompiler) Send(ctx context.Context, sender mail.Sender, msg Message) error {
	var errs []error
	for _, group := range groupByLocale(msg.Recipients, m.locale) {
		group.addresses = msg.Delivered.remaining(group.addresses)
		if len(group.addresses) == 0 {
			continue
		}
		params := m.assembler.BaseParams(group.locale).With(msg.Params)

		subject := m.Subject(msg.Template, params, group.locale)
		body, err := m.renderer.Render(msg.Template.Name, msg.Format, params)
		if err != nil {
			m.log.Errorw("Failed to render mail body", "template", msg.Template.Name, "format", msg.Format, "locale", group.locale, "error", err)
			errs = append(errs, mail.NewError("render", "", err))
			continue
		}
		if msg.Format == domain.FormatHTML && m.styles != nil {
			styled, err := m.styles.ApplyStyles(&body)
			if err != nil {
				errs = append(errs, mail.NewError("style", "", err))
				continue
			}
			body = *styled
		}

		for _, batch := range batches(group.addresses, m.batchSize()) {
			email := mail.Email{
				Bcc:        batch,
				Subject:    subject,
				Body:       body,
				MimeType:   msg.Format.MimeType(),
				Charset:    m.charset(),
				InReplyTo:  msg.InReplyTo,
				References: msg.References,
			}
			if msg.NextMessageID != nil {
				email.MessageID = msg.NextMessageID()
			}
			if err := sender.Send(ctx, email); err != nil {
				errs = append(errs, mail.NewError("send", "", err))
				continue
			}
			msg.Delivered.add(batch)
		}
	}
	return errors.Join(errs...)
}

// Subject renders the subject line. It never fails: render errors and panics
// degrade to the localized error subject.
func (m *MailingListCompiler) Subject(tmpl TemplateRef, params templatecontext.Params, locale string) (subject string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warnw("Subject template panicked", "template", tmpl.Name, "panic", r)
			metrics.RenderFallbacks.WithLabelValues("subject").Inc()
			subject = m.assembler.I18n(locale).Text(templatecontext.MsgSubjectError)
		}
	}()
	s, err := m.renderer.RenderSubject(tmpl.Name, params)
	if err != nil {
		m.log.Warnw("Subject template failed", "template", tmpl.Name, "error", err)
		metrics.RenderFallbacks.WithLabelValues("subject").Inc()
		return m.assembler.I18n(locale).Text(templatecontext.MsgSubjectError)
	}
	return s
}

// locale maps a recipient locale to the supported locale it renders in.
func (m *MailingListCompiler) locale(l string) string {
	return m.assembler.I18n(l).Locale()
}

func (m *MailingListCompiler) batchSize() int {
	n, ok := config.IntProperty(m.props, config.PropRecipientBatchSize)
	if !ok || n <= 0 {
		return 0
	}
	return n
}

func (m *MailingListCompiler) charset() string {
	if m.props == nil {
		return ""
	}
	cs, _ := m.props.String(config.PropMailEncoding)
	return cs
}

type localeGroup struct {
	locale    string
	addresses []string
}

// groupByLocale collects recipient addresses per normalized locale, locales
// sorted and addresses kept in recipient order.
func groupByLocale(recipients []domain.Recipient, normalize func(string) string) []localeGroup {
	index := map[string]int{}
	var groups []localeGroup
	for _, r := range recipients {
		if r.Email() == "" {
			continue
		}
		locale := normalize(r.Locale())
		i, ok := index[locale]
		if !ok {
			i = len(groups)
			index[locale] = i
			groups = append(groups, localeGroup{locale: locale})
		}
		groups[i].addresses = append(groups[i].addresses, r.Email())
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].locale < groups[j].locale })
	return groups
}

// batches splits addresses into chunks of at most size. Size 0 means one batch.
func batches(addresses []string, size int) [][]string {
	if len(addresses) == 0 {
		return nil
	}
	if size <= 0 || size >= len(addresses) {
		return [][]string{addresses}
	}
	var out [][]string
	for start := 0; start < len(addresses); start += size {
		end := min(start+size, len(addresses))
		out = append(out, addresses[start:end])
	}
	return out
}
