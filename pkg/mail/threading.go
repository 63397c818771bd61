package mail

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/domain"
)

// LegacyLookup resolves message ids issued before the current format.
type LegacyLookup interface {
	IssueIDForMessageID(ctx context.Context, messageID string) (issueID int64, found bool, err error)
}

// Headers of an inbound mail. Keys are matched case-insensitively.
type Headers map[string][]string

func (h Headers) get(name string) []string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

var threadIDPattern = regexp.MustCompile(`^JIRA\.(\d+)\.(\d+)(?:\.([0-9a-f]{32})\.(\d+))?@(.+)$`)

// Threader generates Message-IDs that thread every notification of an issue
// together and maps reply headers back to the issue.
//
// A root id has the form JIRA.<issue>.<created>@<domain>. Per notification ids
// append the process instance token and a per-issue sequence so that ids never
// collide, also across restarts.
type Threader struct {
	domain   string
	instance string
	counters sync.Map // issue id -> *atomic.Int64
	legacy   LegacyLookup
	log      *zap.SugaredLogger
}

// NewThreader creates a threader for the given mail domain. legacy may be nil.
func NewThreader(domain string, legacy LegacyLookup, log *zap.SugaredLogger) *Threader {
	return &Threader{
		domain:   domain,
		instance: strings.ReplaceAll(uuid.NewString(), "-", ""),
		legacy:   legacy,
		log:      log.Named("threader"),
	}
}

// NextSequence returns the next sequence number for issueID, starting at 1.
func (t *Threader) NextSequence(issueID int64) int64 {
	v, _ := t.counters.LoadOrStore(issueID, new(atomic.Int64))
	return v.(*atomic.Int64).Add(1)
}

// RootID is the thread root every notification of the issue refers to.
func (t *Threader) RootID(issue *domain.Issue) string {
	return fmt.Sprintf("<JIRA.%d.%d@%s>", issue.ID, issue.Created.UnixMilli(), t.domain)
}

// MessageID is the id of one notification of the issue.
func (t *Threader) MessageID(issue *domain.Issue, seq int64) string {
	return fmt.Sprintf("<JIRA.%d.%d.%s.%d@%s>", issue.ID, issue.Created.UnixMilli(), t.instance, seq, t.domain)
}

// IssueForReply finds the issue an inbound reply belongs to. References are
// checked before In-Reply-To and the first id that resolves wins.
func (t *Threader) IssueForReply(ctx context.Context, headers Headers) (int64, bool) {
	for _, id := range messageIDs(headers.get("References")) {
		if issueID, ok := t.resolve(ctx, id); ok {
			return issueID, true
		}
	}
	for _, id := range messageIDs(headers.get("In-Reply-To")) {
		if issueID, ok := t.resolve(ctx, id); ok {
			return issueID, true
		}
	}
	return 0, false
}

func (t *Threader) resolve(ctx context.Context, messageID string) (int64, bool) {
	// ids of another installation only resolve through the legacy table
	if m := threadIDPattern.FindStringSubmatch(messageID); m != nil && strings.EqualFold(m[5], t.domain) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return id, true
		}
	}
	if t.legacy == nil {
		return 0, false
	}
	id, found, err := t.legacy.IssueIDForMessageID(ctx, "<"+messageID+">")
	if err != nil {
		t.log.Warnw("Legacy message id lookup failed", "messageID", messageID, "error", err)
		return 0, false
	}
	return id, found
}

// messageIDs splits header values into bare ids, keeping their order.
func messageIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, f := range strings.Fields(v) {
			f = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(f), "<"), ">")
			if f != "" {
				ids = append(ids, f)
			}
		}
	}
	return ids
}
