// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/mailitem"
	"github.com/telekom/issuemail/pkg/notification"
)

// Store resolves the entities an envelope refers to.
type Store interface {
	domain.IssueManager
	domain.CommentManager
	domain.WorklogManager
	domain.SubscriptionManager
	domain.UserManager
	domain.RecipientResolver
}

// IssueCompiler partitions issue events into queued items.
type IssueCompiler interface {
	Compile(ctx context.Context, event *domain.IssueEvent, recipients []domain.Recipient, tmpl notification.TemplateRef) error
}

// Dispatcher routes decoded envelopes to the compiler or queues the matching item.
type Dispatcher struct {
	store    Store
	compiler IssueCompiler
	queue    mail.ItemQueue
	items    mailitem.Deps
	log      *zap.SugaredLogger
}

func NewDispatcher(store Store, compiler IssueCompiler, queue mail.ItemQueue, items mailitem.Deps, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		compiler: compiler,
		queue:    queue,
		items:    items,
		log:      log.Named("dispatcher"),
	}
}

// Dispatch handles one envelope. Missing entities yield ErrUnknownEntity.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	switch env.Kind() {
	case KindIssue:
		return d.issue(ctx, env)
	case KindMention:
		return d.mention(ctx, env)
	case KindSubscription:
		return d.subscription(ctx, env)
	case KindUser:
		return d.user(ctx, env)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

func (d *Dispatcher) issue(ctx context.Context, env Envelope) error {
	issue, err := d.loadIssue(ctx, env.IssueID)
	if err != nil {
		return err
	}
	event := &domain.IssueEvent{
		Type:   domain.IssueEventType(env.Type),
		Issue:  issue,
		Origin: domain.ParseOrigin(env.Origin),
		Params: env.Params,
		Time:   env.Time,
	}
	if event.Actor, err = d.actor(ctx, env.UserName); err != nil {
		return err
	}
	if event.Comment, err = d.comment(ctx, env.CommentID); err != nil {
		return err
	}
	if event.OriginalComment, err = d.comment(ctx, env.OriginalCommentID); err != nil {
		return err
	}
	if event.Worklog, err = d.worklog(ctx, env.WorklogID); err != nil {
		return err
	}
	if event.OriginalWorklog, err = d.worklog(ctx, env.OriginalWorklogID); err != nil {
		return err
	}
	if event.ChangeLog, err = d.changeLog(ctx, env.ChangeLog, event.Actor); err != nil {
		return err
	}

	recipients, err := d.store.Recipients(ctx, event)
	if err != nil {
		return fmt.Errorf("resolving recipients of %s: %w", issue.Key, err)
	}
	tmpl := notification.DefaultIssueTemplate
	if env.Template != "" {
		tmpl = notification.TemplateRef{Name: env.Template}
	}
	return d.compiler.Compile(ctx, event, recipients, tmpl)
}

func (d *Dispatcher) mention(ctx context.Context, env Envelope) error {
	issue, err := d.loadIssue(ctx, env.IssueID)
	if err != nil {
		return err
	}
	comment, err := d.comment(ctx, env.CommentID)
	if err != nil {
		return err
	}
	author := comment.Author
	if env.UserName != "" {
		if author, err = d.actor(ctx, env.UserName); err != nil {
			return err
		}
	}
	format, _ := env.RecipientFormat()

	var mentioned []domain.Recipient
	for _, name := range env.Mentioned {
		u, err := d.store.UserByName(ctx, name)
		if err != nil {
			return fmt.Errorf("loading mentioned user %s: %w", name, err)
		}
		if u == nil {
			d.log.Infow("Mentioned user does not exist, skipping", "user", name)
			continue
		}
		mentioned = append(mentioned, domain.NewUserRecipient(u, format))
	}
	if len(mentioned) == 0 {
		d.log.Debugw("Mention without known users", "issue", issue.Key)
		return nil
	}
	return d.queue.AddItem(mailitem.NewMentionItem(d.items, issue, comment, author, mentioned))
}

func (d *Dispatcher) subscription(ctx context.Context, env Envelope) error {
	sub, err := d.store.SubscriptionByID(ctx, env.SubscriptionID)
	if err != nil {
		return fmt.Errorf("loading subscription %d: %w", env.SubscriptionID, err)
	}
	if sub == nil {
		return fmt.Errorf("subscription %d: %w", env.SubscriptionID, ErrUnknownEntity)
	}
	format, _ := env.RecipientFormat()
	return d.queue.AddItem(mailitem.NewSubscriptionItem(d.items, sub, format))
}

func (d *Dispatcher) user(ctx context.Context, env Envelope) error {
	tmpl, ok := mailitem.UserTemplate(domain.UserEventType(env.Type))
	if !ok {
		return fmt.Errorf("%w: no template for %s", ErrMalformed, env.Type)
	}
	if env.Template != "" {
		tmpl = notification.TemplateRef{Name: env.Template}
	}
	u, err := d.store.UserByName(ctx, env.UserName)
	if err != nil {
		return fmt.Errorf("loading user %s: %w", env.UserName, err)
	}
	if u == nil {
		return fmt.Errorf("user %s: %w", env.UserName, ErrUnknownEntity)
	}
	format, _ := env.RecipientFormat()
	event := &domain.UserEvent{Type: domain.UserEventType(env.Type), User: u, Params: env.Params}
	return d.queue.AddItem(mailitem.NewUserItem(d.items, event, tmpl, domain.NewUserRecipient(u, format)))
}

func (d *Dispatcher) loadIssue(ctx context.Context, id int64) (*domain.Issue, error) {
	issue, err := d.store.IssueByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading issue %d: %w", id, err)
	}
	if issue == nil {
		return nil, fmt.Errorf("issue %d: %w", id, ErrUnknownEntity)
	}
	return issue, nil
}

// actor loads the acting user. Unknown users act anonymously.
func (d *Dispatcher) actor(ctx context.Context, name string) (*domain.User, error) {
	if name == "" {
		return nil, nil
	}
	u, err := d.store.UserByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", name, err)
	}
	return u, nil
}

// changeLog builds the domain change log. An unknown author leaves it
// anonymous, like the acting user.
func (d *Dispatcher) changeLog(ctx context.Context, cl *ChangeLog, actor *domain.User) (*domain.ChangeLog, error) {
	if cl == nil {
		return nil, nil
	}
	author := actor
	if cl.Author != "" {
		var err error
		if author, err = d.actor(ctx, cl.Author); err != nil {
			return nil, err
		}
	}
	items := make([]domain.ChangeItem, 0, len(cl.Items))
	for _, it := range cl.Items {
		items = append(items, domain.ChangeItem{Field: it.Field, FieldType: it.FieldType, From: it.From, To: it.To})
	}
	return &domain.ChangeLog{ID: cl.ID, Author: author, Created: cl.Created, Items: items}, nil
}

func (d *Dispatcher) comment(ctx context.Context, id int64) (*domain.Comment, error) {
	if id == 0 {
		return nil, nil
	}
	c, err := d.store.CommentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading comment %d: %w", id, err)
	}
	if c == nil {
		return nil, fmt.Errorf("comment %d: %w", id, ErrUnknownEntity)
	}
	return c, nil
}

func (d *Dispatcher) worklog(ctx context.Context, id int64) (*domain.Worklog, error) {
	if id == 0 {
		return nil, nil
	}
	w, err := d.store.WorklogByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading worklog %d: %w", id, err)
	}
	if w == nil {
		return nil, fmt.Errorf("worklog %d: %w", id, ErrUnknownEntity)
	}
	return w, nil
}
