package domain

import (
	"context"
)

type UserManager interface {
	UserByName(ctx context.Context, name string) (*User, error)
}

type GroupManager interface {
	IsUserInGroup(ctx context.Context, userName, group string) (bool, error)
	GroupMembers(ctx context.Context, group string) ([]*User, error)
}

type ProjectRoleManager interface {
	IsUserInRole(ctx context.Context, user *User, role string, project *Project) (bool, error)
}

type PermissionManager interface {
	CanBrowse(ctx context.Context, user *User, issue *Issue) (bool, error)
}

type IssueManager interface {
	IssueByID(ctx context.Context, id int64) (*Issue, error)
}

type CommentManager interface {
	CommentByID(ctx context.Context, id int64) (*Comment, error)
}

type WorklogManager interface {
	WorklogByID(ctx context.Context, id int64) (*Worklog, error)
}

type SubscriptionManager interface {
	SubscriptionByID(ctx context.Context, id int64) (*Subscription, error)
}

type FilterManager interface {
	FilterByID(ctx context.Context, id int64) (*Filter, error)
}

// SearchResults is one page of a filter search.
type SearchResults struct {
	Issues []*Issue
	// Total is the number of matching issues, which may exceed len(Issues).
	Total int
}

// IssueSearcher runs a saved filter as the acting user found in ctx.
// limit <= 0 means unbounded.
type IssueSearcher interface {
	Search(ctx context.Context, filter *Filter, limit int) (SearchResults, error)
}

// RecipientResolver computes who is notified about an issue event, e.g. from
// the project's notification scheme and the issue watchers.
type RecipientResolver interface {
	Recipients(ctx context.Context, event *IssueEvent) ([]Recipient, error)
}
