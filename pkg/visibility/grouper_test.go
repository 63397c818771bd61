package visibility

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/telekom/issuemail/pkg/domain"
	"github.com/telekom/issuemail/pkg/system"
)

func TestGroupScenarioGroupLevel(t *testing.T) {
	f := newFixture()
	g := NewGrouper(NewClassifier(f.store, f.store, system.NewTestLogger()))
	ctx := context.Background()
	level := domain.GroupVisibility("jira-developers")
	recipients := []domain.Recipient{f.dev, f.outside}

	lenient := g.Group(ctx, recipients, level, nil, f.issue, false)
	assert.Equal(t, []domain.Recipient{f.dev}, lenient.Cell(BucketCurrentOnly, domain.FormatHTML))
	assert.Equal(t, []domain.Recipient{f.outside}, lenient.Cell(BucketNoRestricted, domain.FormatText))
	assert.Empty(t, lenient[BucketFull])
	assert.Equal(t, 2, lenient.Len())

	strict := g.Group(ctx, recipients, level, nil, f.issue, true)
	assert.Equal(t, []domain.Recipient{f.dev}, strict.Cell(BucketCurrentOnly, domain.FormatHTML))
	assert.Empty(t, strict[BucketNoRestricted])
	assert.Equal(t, 1, strict.Len())
}

func TestGroupWithOriginalLevel(t *testing.T) {
	f := newFixture()
	f.store.AddToGroup("jira-users", "dev", "outside")
	narrow := f.store.AddUser(&domain.User{Name: "narrow", Email: "narrow@example.com"})
	f.store.AddToGroup("jira-developers", "narrow")
	narrowR := domain.NewUserRecipient(narrow, domain.FormatText)

	g := NewGrouper(NewClassifier(f.store, f.store, system.NewTestLogger()))
	original := domain.GroupVisibility("jira-users")

	b := g.Group(context.Background(),
		[]domain.Recipient{f.dev, f.outside, narrowR},
		domain.GroupVisibility("jira-developers"), &original, f.issue, false)

	assert.Equal(t, []domain.Recipient{f.dev}, b.Cell(BucketFull, domain.FormatHTML))
	assert.Equal(t, []domain.Recipient{narrowR}, b.Cell(BucketCurrentOnly, domain.FormatText))
	assert.Equal(t, []domain.Recipient{f.outside}, b.Cell(BucketNoRestricted, domain.FormatText))
}

func TestGroupCollapsesDuplicates(t *testing.T) {
	f := newFixture()
	g := NewGrouper(NewClassifier(f.store, f.store, system.NewTestLogger()))
	b := g.Group(context.Background(), []domain.Recipient{f.dev, f.dev, f.bare, f.bare},
		domain.Unrestricted, nil, f.issue, false)
	assert.Equal(t, 2, b.Len())
}

func TestEveryone(t *testing.T) {
	f := newFixture()
	b := Everyone([]domain.Recipient{f.dev, f.outside, f.bare, f.outside})
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []domain.Format{domain.FormatHTML, domain.FormatText}, b.Formats(BucketFull))
}

// memberChecker treats a recipient as visible under a group when its name is in
// that group's set; role levels always fail.
type memberChecker map[string]map[string]bool

func (m memberChecker) HasVisibility(_ context.Context, level domain.Visibility, r domain.Recipient, _ *domain.Issue) bool {
	if !level.IsRestricted() {
		return true
	}
	if r.User() == nil || level.GroupLevel == "" {
		return false
	}
	return m[level.GroupLevel][r.User().Name]
}

func TestGroupIsTotalPartition(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 25).Draw(rt, "numRecipients")
		strict := rapid.Bool().Draw(rt, "strict")
		withOriginal := rapid.Bool().Draw(rt, "withOriginal")

		checker := memberChecker{"current": {}, "original": {}}
		recipients := make([]domain.Recipient, 0, n)
		for i := 0; i < n; i++ {
			format := rapid.SampledFrom([]domain.Format{domain.FormatText, domain.FormatHTML, ""}).Draw(rt, "format")
			if rapid.Bool().Draw(rt, "bare") {
				recipients = append(recipients, domain.NewEmailRecipient(fmt.Sprintf("bare%d@example.com", i), format))
				continue
			}
			name := fmt.Sprintf("user%d", i)
			checker["current"][name] = rapid.Bool().Draw(rt, "inCurrent")
			checker["original"][name] = rapid.Bool().Draw(rt, "inOriginal")
			recipients = append(recipients, domain.NewUserRecipient(&domain.User{Name: name, Email: name + "@example.com"}, format))
		}

		var original *domain.Visibility
		if withOriginal {
			o := domain.GroupVisibility("original")
			original = &o
		}
		level := domain.GroupVisibility("current")
		b := NewGrouper(checker).Group(context.Background(), recipients, level, original, nil, strict)

		placed := map[string]BucketID{}
		for id, cells := range b {
			for format, rs := range cells {
				for _, r := range rs {
					_, dup := placed[r.Key()]
					require.False(rt, dup, "recipient %s placed twice", r)
					require.Equal(rt, r.Format(), format)
					placed[r.Key()] = id
				}
			}
		}

		for _, r := range recipients {
			visible := checker.HasVisibility(context.Background(), level, r, nil)
			id, ok := placed[r.Key()]
			if !visible && strict {
				require.False(rt, ok, "invisible recipient %s must be dropped in strict mode", r)
				continue
			}
			require.True(rt, ok, "recipient %s missing from partition", r)
			switch {
			case !visible:
				require.Equal(rt, BucketNoRestricted, id)
			case original != nil && checker.HasVisibility(context.Background(), *original, r, nil):
				require.Equal(rt, BucketFull, id)
			default:
				require.Equal(rt, BucketCurrentOnly, id)
			}
		}
	})
}
