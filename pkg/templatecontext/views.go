package templatecontext

import (
	"net/url"
	"strings"

	"github.com/telekom/issuemail/pkg/domain"
)

// IssueView pairs an issue with rendering helpers computed once per event.
// Callers that need plain issue fields use Issue().
type IssueView struct {
	issue      *domain.Issue
	url        string
	projectURL string
}

func NewIssueView(issue *domain.Issue, baseURL string) IssueView {
	v := IssueView{issue: issue}
	if issue == nil {
		return v
	}
	base := strings.TrimRight(baseURL, "/")
	v.url = base + "/browse/" + url.PathEscape(issue.Key)
	if issue.Project != nil {
		v.projectURL = base + "/browse/" + url.PathEscape(issue.Project.Key)
	}
	return v
}

func (v IssueView) Issue() *domain.Issue { return v.issue }

func (v IssueView) Key() string {
	if v.issue == nil {
		return ""
	}
	return v.issue.Key
}

func (v IssueView) Summary() string {
	if v.issue == nil {
		return ""
	}
	return v.issue.Summary
}

func (v IssueView) URL() string { return v.url }

func (v IssueView) ProjectURL() string { return v.projectURL }

func (v IssueView) ProjectName() string {
	if v.issue == nil || v.issue.Project == nil {
		return ""
	}
	return v.issue.Project.Name
}

// AssigneeName returns the assignee's display name, or "" when unassigned.
func (v IssueView) AssigneeName() string {
	if v.issue == nil {
		return ""
	}
	return displayName(v.issue.Assignee)
}

func (v IssueView) ReporterName() string {
	if v.issue == nil {
		return ""
	}
	return displayName(v.issue.Reporter)
}

// UserView exposes a user to templates without leaking the domain pointer.
type UserView struct {
	Name        string
	DisplayName string
	Email       string
	ProfileURL  string
}

// NewUserView returns nil for a nil user so templates can test {{with .remoteUser}}.
func NewUserView(u *domain.User, baseURL string) *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		Name:        u.Name,
		DisplayName: displayName(u),
		Email:       u.Email,
		ProfileURL:  strings.TrimRight(baseURL, "/") + "/secure/ViewProfile.jspa?name=" + url.QueryEscape(u.Name),
	}
}

func displayName(u *domain.User) string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}
