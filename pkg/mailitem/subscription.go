package mailitem

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/auth"
	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/notification"
	"github.com/telekom/issuemail/pkg/templatecontext"
)

// SubscriptionTemplate is the template filter subscription mails are rendered with.
var SubscriptionTemplate = notification.TemplateRef{Name: "filtersubscription"}

// ErrNilSubscription is the panic value of NewSubscriptionItem for a nil subscription.
var ErrNilSubscription = errors.New("subscription item requires a subscription")

// SubscriptionItem runs a filter subscription. Every recipient gets its own
// mail, with the filter executed as that recipient.
type SubscriptionItem struct {
	deps   Deps
	id     string
	sub    *domain.Subscription
	format domain.Format
	log    *zap.SugaredLogger

	delivered notification.Deliveries
}

// NewSubscriptionItem panics on a nil subscription.
func NewSubscriptionItem(deps Deps, sub *domain.Subscription, format domain.Format) *SubscriptionItem {
	if sub == nil {
		panic(ErrNilSubscription)
	}
	id := newID()
	return &SubscriptionItem{
		deps:   deps,
		id:     id,
		sub:    sub,
		format: format,
		log:    deps.Log.Named("subscription-item").With("id", id, "subscriptionID", sub.ID, "filterID", sub.FilterID),
	}
}

func (s *SubscriptionItem) ID() string { return s.id }

func (s *SubscriptionItem) Subject(ctx context.Context) string {
	params := templatecontext.Params{templatecontext.KeySubscription: s.sub}
	if filter, err := s.deps.Filters.FilterByID(ctx, s.sub.FilterID); err == nil && filter != nil {
		params[templatecontext.KeyFilter] = filter
	}
	var recipients []domain.Recipient
	if s.sub.Owner != nil {
		recipients = append(recipients, domain.NewUserRecipient(s.sub.Owner, s.format))
	}
	return s.deps.subject(SubscriptionTemplate, params, recipients)
}

// Send mails the filter results to the subscription's group members, or to its
// owner when no group is set.
func (s *SubscriptionItem) Send(ctx context.Context) error {
	sender, ok := s.deps.sender(s.id, s.log)
	if !ok {
		return nil
	}
	filter, err := s.deps.Filters.FilterByID(ctx, s.sub.FilterID)
	if err != nil {
		return mail.NewError("filter", s.id, err)
	}
	if filter == nil {
		s.log.Warnw("Filter of subscription no longer exists, skipping")
		return nil
	}

	recipients, err := s.recipients(ctx)
	if err != nil {
		return mail.NewError("recipients", s.id, err)
	}

	var errs []error
	sent := 0
	for _, r := range recipients {
		if s.delivered.Has(r.Email()) {
			continue
		}
		ok, err := s.sendTo(ctx, sender, filter, r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			sent++
		}
	}
	s.log.Infow("Filter subscription run", "recipients", len(recipients), "sent", sent)
	if len(errs) > 0 {
		return mail.NewError("send", s.id, errors.Join(errs...))
	}
	return nil
}

func (s *SubscriptionItem) recipients(ctx context.Context) ([]domain.Recipient, error) {
	var users []*domain.User
	if s.sub.GroupName != "" {
		members, err := s.deps.Groups.GroupMembers(ctx, s.sub.GroupName)
		if err != nil {
			return nil, fmt.Errorf("listing members of %s: %w", s.sub.GroupName, err)
		}
		users = members
	} else if s.sub.Owner != nil {
		users = []*domain.User{s.sub.Owner}
	}
	rs := make([]domain.Recipient, 0, len(users))
	for _, u := range users {
		if u == nil || u.Email == "" {
			continue
		}
		rs = append(rs, domain.NewUserRecipient(u, s.format))
	}
	return s.deps.current(ctx, rs, s.log), nil
}

// sendTo runs the filter as r and mails the result. It reports whether a mail was sent.
func (s *SubscriptionItem) sendTo(ctx context.Context, sender mail.Sender, filter *domain.Filter, r domain.Recipient) (bool, error) {
	asRecipient := auth.WithUser(ctx, r.User())
	res, err := s.deps.Assembler.SubscriptionParams(asRecipient, s.sub, filter, r.Locale())
	if err != nil {
		s.log.Warnw("Running filter failed", "recipient", r.String(), "error", err)
		return false, err
	}
	if res.Results.Total == 0 && !s.sub.EmailOnEmpty {
		s.log.Debugw("Filter returned no issues, not mailing", "recipient", r.String())
		return false, nil
	}
	params := res.Params.With(templatecontext.Params{
		templatecontext.KeyRecipient: templatecontext.NewUserView(r.User(), s.deps.Assembler.BaseURL()),
	})
	err = s.deps.MailingList.Send(asRecipient, sender, notification.Message{
		Template:   SubscriptionTemplate,
		Format:     r.Format(),
		Recipients: []domain.Recipient{r},
		Params:     params,
		Delivered:  &s.delivered,
	})
	return err == nil, err
}
