package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/telekom/issuemail/pkg/domain"
)

// Event types that are not issue or user lifecycle events.
const (
	TypeMention      = "issue_mentioned"
	TypeSubscription = "filter_subscription"
)

var (
	// ErrMalformed marks an envelope that can never be processed.
	ErrMalformed = errors.New("malformed event")
	// ErrUnknownEntity marks an envelope referring to an entity that no longer exists.
	ErrUnknownEntity = errors.New("referenced entity does not exist")
)

// Kind groups event types by the item they produce.
type Kind string

const (
	KindIssue        Kind = "issue"
	KindMention      Kind = "mention"
	KindSubscription Kind = "subscription"
	KindUser         Kind = "user"
	KindUnknown      Kind = "unknown"
)

// Envelope is the JSON message published for every domain event.
type Envelope struct {
	Type              string         `json:"type"`
	IssueID           int64          `json:"issueId,omitempty"`
	CommentID         int64          `json:"commentId,omitempty"`
	OriginalCommentID int64          `json:"originalCommentId,omitempty"`
	WorklogID         int64          `json:"worklogId,omitempty"`
	OriginalWorklogID int64          `json:"originalWorklogId,omitempty"`
	Origin            string         `json:"origin,omitempty"`
	UserName          string         `json:"userName,omitempty"`
	SubscriptionID    int64          `json:"subscriptionId,omitempty"`
	Template          string         `json:"template,omitempty"`
	Format            string         `json:"format,omitempty"`
	Mentioned         []string       `json:"mentioned,omitempty"`
	ChangeLog         *ChangeLog     `json:"changelog,omitempty"`
	Params            map[string]any `json:"params,omitempty"`
	Time              time.Time      `json:"time,omitempty"`
}

// ChangeLog carries the field changes of an issue update. Author names the
// user who made them; the event's user is assumed when it is empty.
type ChangeLog struct {
	ID      int64        `json:"id,omitempty"`
	Author  string       `json:"author,omitempty"`
	Created time.Time    `json:"created,omitempty"`
	Items   []ChangeItem `json:"items"`
}

type ChangeItem struct {
	Field     string `json:"field"`
	FieldType string `json:"fieldType,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

// Decode parses and validates an envelope. Every error wraps ErrMalformed.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := env.Validate(); err != nil {
		return env, err
	}
	return env, nil
}

func (e Envelope) Kind() Kind {
	switch {
	case e.Type == TypeMention:
		return KindMention
	case e.Type == TypeSubscription:
		return KindSubscription
	case strings.HasPrefix(e.Type, "issue_"):
		return KindIssue
	case strings.HasPrefix(e.Type, "user_"):
		return KindUser
	default:
		return KindUnknown
	}
}

// Validate checks that the fields the event kind needs are present.
func (e Envelope) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if _, err := e.RecipientFormat(); err != nil {
		return err
	}
	switch e.Kind() {
	case KindIssue:
		if e.IssueID == 0 {
			return fmt.Errorf("%w: %s without issueId", ErrMalformed, e.Type)
		}
		if e.ChangeLog != nil {
			for i, item := range e.ChangeLog.Items {
				if item.Field == "" {
					return fmt.Errorf("%w: changelog item %d without field", ErrMalformed, i)
				}
			}
		}
	case KindMention:
		if e.IssueID == 0 || e.CommentID == 0 {
			return fmt.Errorf("%w: %s needs issueId and commentId", ErrMalformed, e.Type)
		}
	case KindSubscription:
		if e.SubscriptionID == 0 {
			return fmt.Errorf("%w: %s without subscriptionId", ErrMalformed, e.Type)
		}
	case KindUser:
		if e.UserName == "" {
			return fmt.Errorf("%w: %s without userName", ErrMalformed, e.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, e.Type)
	}
	return nil
}

// RecipientFormat is the format requested by the event, HTML when unset.
func (e Envelope) RecipientFormat() (domain.Format, error) {
	switch strings.ToLower(e.Format) {
	case "", string(domain.FormatHTML):
		return domain.FormatHTML, nil
	case string(domain.FormatText):
		return domain.FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", ErrMalformed, e.Format)
	}
}
