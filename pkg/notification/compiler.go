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

package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/metrics"
	"github.com/telekom/issuemail/pkg/system"
	"github.com/telekom/issuemail/pkg/templatecontext"
	"github.com/telekom/issuemail/pkg/visibility"
)

// TemplateRef names the mail template an event is rendered with.
type TemplateRef struct {
	Name string
}

// DefaultIssueTemplate renders every issue event type.
var DefaultIssueTemplate = TemplateRef{Name: "issueevent"}

// Cell is one (bucket, format) group of recipients together with the trust
// snapshot of the template context they are allowed to see.
type Cell struct {
	Event      *domain.IssueEvent
	Bucket     visibility.BucketID
	Format     domain.Format
	Recipients []domain.Recipient
	Params     templatecontext.Params
	Template   TemplateRef
}

// ItemBuilder creates the queue item that delivers a cell.
type ItemBuilder interface {
	IssueItem(cell Cell) mail.Item
}

// Compiler turns an issue event into mail queue items.
type Compiler struct {
	grouper   *visibility.Grouper
	assembler *templatecontext.Assembler
	builder   ItemBuilder
	queue     mail.ItemQueue
	log       *zap.SugaredLogger
}

func NewCompiler(grouper *visibility.Grouper, assembler *templatecontext.Assembler, builder ItemBuilder, queue mail.ItemQueue, log *zap.SugaredLogger) *Compiler {
	return &Compiler{
		grouper:   grouper,
		assembler: assembler,
		builder:   builder,
		queue:     queue,
		log:       log.Named("notification-compiler"),
	}
}

// Compile groups recipients by visibility and queues one item per non-empty
// cell, highest trust bucket first. A failure to queue one cell does not stop
// the others; all failures are returned together.
func (c *Compiler) Compile(ctx context.Context, event *domain.IssueEvent, recipients []domain.Recipient, tmpl TemplateRef) error {
	if event == nil || event.Issue == nil {
		return fmt.Errorf("compiling notification: event without issue")
	}
	log := c.log.With(system.IssueFields(event.Issue.ID, event.Issue.Key)...)

	buckets := c.group(ctx, event, recipients)
	snapshots := Snapshots(c.assembler.IssueParams(event))

	var errs []error
	queued := 0
	for _, bucket := range visibility.BucketOrder {
		for _, format := range buckets.Formats(bucket) {
			rs := buckets.Cell(bucket, format)
			if len(rs) == 0 {
				continue
			}
			item := c.builder.IssueItem(Cell{
				Event:      event,
				Bucket:     bucket,
				Format:     format,
				Recipients: rs,
				Params:     snapshots[bucket],
				Template:   tmpl,
			})
			if err := c.queue.AddItem(item); err != nil {
				log.Errorw("Failed to queue notification", "bucket", bucket, "format", format, "recipients", len(rs), "error", err)
				errs = append(errs, fmt.Errorf("queueing %s/%s: %w", bucket, format, err))
				continue
			}
			metrics.NotificationCells.WithLabelValues(string(bucket), string(format)).Inc()
			queued++
		}
	}
	log.Debugw("Notification compiled", "event", event.Type, "recipients", len(recipients), "items", queued)
	return errors.Join(errs...)
}

func (c *Compiler) group(ctx context.Context, event *domain.IssueEvent, recipients []domain.Recipient) visibility.Buckets {
	level, original, ok := restriction(event)
	if !ok {
		return visibility.Everyone(recipients)
	}
	var strict bool
	switch event.Origin {
	case domain.OriginUserAction:
		strict = true
	case domain.OriginWorkflow:
		strict = false
	default:
		return visibility.Everyone(recipients)
	}
	return c.grouper.Group(ctx, recipients, level, original, event.Issue, strict)
}

// restriction returns the visibility levels of the event's comment or
// worklog. ok is false when neither the current nor the original version is
// restricted.
func restriction(event *domain.IssueEvent) (level domain.Visibility, original *domain.Visibility, ok bool) {
	switch {
	case event.Comment != nil:
		level = event.Comment.Visibility
		if event.OriginalComment != nil {
			v := event.OriginalComment.Visibility
			original = &v
		}
	case event.Worklog != nil:
		level = event.Worklog.Visibility
		if event.OriginalWorklog != nil {
			v := event.OriginalWorklog.Visibility
			original = &v
		}
	default:
		return level, nil, false
	}
	if !level.IsRestricted() && (original == nil || !original.IsRestricted()) {
		return level, nil, false
	}
	return level, original, true
}

// Snapshots derives the context each bucket may see. The input is not modified.
func Snapshots(full templatecontext.Params) map[visibility.BucketID]templatecontext.Params {
	reduced := full.Without(templatecontext.OriginalContentKeys...)
	return map[visibility.BucketID]templatecontext.Params{
		visibility.BucketFull:         full.Clone(),
		visibility.BucketCurrentOnly:  reduced,
		visibility.BucketNoRestricted: reduced.Without(templatecontext.RestrictedContentKeys...),
	}
}
