package visibility

import (
	"context"
	"sort"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/metrics"
)

// BucketID names a visibility outcome.
type BucketID string

const (
	// BucketFull recipients see the restricted content and its original (pre-edit) version.
	BucketFull BucketID = "full"
	// BucketCurrentOnly recipients see the restricted content but not the original.
	BucketCurrentOnly BucketID = "current-only"
	// BucketNoRestricted recipients get the notification with restricted content stripped.
	BucketNoRestricted BucketID = "no-restricted"
)

// BucketOrder is the order buckets are processed in, highest trust first.
var BucketOrder = []BucketID{BucketFull, BucketCurrentOnly, BucketNoRestricted}

// Buckets maps each visibility outcome to recipients keyed by format.
type Buckets map[BucketID]map[domain.Format][]domain.Recipient

func (b Buckets) add(id BucketID, r domain.Recipient) {
	cells, ok := b[id]
	if !ok {
		cells = map[domain.Format][]domain.Recipient{}
		b[id] = cells
	}
	f := r.Format()
	cells[f] = append(cells[f], r)
}

// Cell returns the recipients of one (bucket, format) cell.
func (b Buckets) Cell(id BucketID, f domain.Format) []domain.Recipient {
	return b[id][f]
}

// Formats returns the formats present in a bucket, sorted for stable iteration.
func (b Buckets) Formats(id BucketID) []domain.Format {
	formats := make([]domain.Format, 0, len(b[id]))
	for f := range b[id] {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// Len counts every recipient across all cells.
func (b Buckets) Len() int {
	n := 0
	for _, cells := range b {
		for _, rs := range cells {
			n += len(rs)
		}
	}
	return n
}

// Grouper partitions recipients by what they may see.
type Grouper struct {
	checker Checker
}

func NewGrouper(checker Checker) *Grouper {
	return &Grouper{checker: checker}
}

// Group places every recipient in exactly one (bucket, format) cell. original
// is nil when the content has no previous version. In strict mode recipients
// that cannot see the current level are dropped instead of being placed in
// BucketNoRestricted. Duplicate recipients are collapsed.
func (g *Grouper) Group(ctx context.Context, recipients []domain.Recipient, level domain.Visibility, original *domain.Visibility, issue *domain.Issue, strict bool) Buckets {
	buckets := Buckets{}
	seen := make(map[string]struct{}, len(recipients))

	for _, r := range recipients {
		if _, dup := seen[r.Key()]; dup {
			continue
		}
		seen[r.Key()] = struct{}{}

		if !g.checker.HasVisibility(ctx, level, r, issue) {
			if strict {
				metrics.RecipientsDropped.Inc()
				continue
			}
			buckets.add(BucketNoRestricted, r)
			continue
		}
		if original != nil && g.checker.HasVisibility(ctx, *original, r, issue) {
			buckets.add(BucketFull, r)
			continue
		}
		buckets.add(BucketCurrentOnly, r)
	}
	return buckets
}

// Everyone places all recipients in BucketFull, for unrestricted notifications.
func Everyone(recipients []domain.Recipient) Buckets {
	buckets := Buckets{}
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		if _, dup := seen[r.Key()]; dup {
			continue
		}
		seen[r.Key()] = struct{}{}
		buckets.add(BucketFull, r)
	}
	return buckets
}
