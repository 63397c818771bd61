package domain

import (
	"time"
)

// Origin records what caused an issue mutation.
type Origin int

const (
	OriginUnknown Origin = iota
	// OriginUserAction is a change made directly by a user, e.g. editing a comment's visibility.
	OriginUserAction
	// OriginWorkflow is a side effect of an automated workflow transition.
	OriginWorkflow
)

func (o Origin) String() string {
	switch o {
	case OriginUserAction:
		return "user-action"
	case OriginWorkflow:
		return "workflow"
	default:
		return "unknown"
	}
}

// ParseOrigin maps the wire name of an origin back to its value.
func ParseOrigin(s string) Origin {
	switch s {
	case "user-action":
		return OriginUserAction
	case "workflow":
		return OriginWorkflow
	default:
		return OriginUnknown
	}
}

type IssueEventType string

const (
	IssueCreated        IssueEventType = "issue_created"
	IssueUpdated        IssueEventType = "issue_updated"
	IssueAssigned       IssueEventType = "issue_assigned"
	IssueResolved       IssueEventType = "issue_resolved"
	IssueCommented      IssueEventType = "issue_commented"
	IssueCommentEdited  IssueEventType = "issue_comment_edited"
	IssueWorkLogged     IssueEventType = "issue_worklogged"
	IssueWorklogUpdated IssueEventType = "issue_worklog_updated"
	IssueGenericEvent   IssueEventType = "issue_generic"
)

// IssueEvent is raised when an issue changes.
type IssueEvent struct {
	Type            IssueEventType
	Issue           *Issue
	Actor           *User
	Comment         *Comment
	OriginalComment *Comment
	Worklog         *Worklog
	OriginalWorklog *Worklog
	ChangeLog       *ChangeLog
	Origin          Origin
	Params          map[string]any
	Time            time.Time
}

type UserEventType string

const (
	UserSignup         UserEventType = "user_signup"
	UserCreated        UserEventType = "user_created"
	UserForgotPassword UserEventType = "user_forgot_password"
	UserForgotUsername UserEventType = "user_forgot_username"
)

// UserEvent is raised on user lifecycle changes.
type UserEvent struct {
	Type   UserEventType
	User   *User
	Params map[string]any
}
