package domain

import (
	"time"
)

type User struct {
	Name        string
	DisplayName string
	Email       string
	// Locale is a BCP 47 tag such as "en" or "de-DE". Empty means the default locale.
	Locale string
	Active bool
}

type Project struct {
	ID   int64
	Key  string
	Name string
}

type SecurityLevel struct {
	ID          int64
	Name        string
	Description string
}

type Attachment struct {
	ID       int64
	Filename string
	Size     int64
	MimeType string
	Author   *User
	Created  time.Time
}

type Issue struct {
	ID          int64
	Key         string
	Summary     string
	Description string
	Project     *Project
	IssueType   string
	Status      string
	Priority    string
	Reporter    *User
	Assignee    *User
	Created     time.Time
	Updated     time.Time
	Security    *SecurityLevel
	Attachments []Attachment
}

type Comment struct {
	ID         int64
	IssueID    int64
	Author     *User
	Body       string
	Visibility Visibility
	Created    time.Time
	Updated    time.Time
}

type Worklog struct {
	ID         int64
	IssueID    int64
	Author     *User
	Comment    string
	TimeSpent  time.Duration
	StartDate  time.Time
	Visibility Visibility
}

type ChangeItem struct {
	Field     string
	FieldType string
	From      string
	To        string
}

type ChangeLog struct {
	ID      int64
	Author  *User
	Created time.Time
	Items   []ChangeItem
}

type Filter struct {
	ID    int64
	Name  string
	Owner *User
	Query string
}

type Subscription struct {
	ID       int64
	FilterID int64
	// Owner is the user who created the subscription. Recipients default to the
	// owner when GroupName is empty.
	Owner     *User
	GroupName string
	// EmailOnEmpty sends the email even when the filter returns no issues.
	EmailOnEmpty bool
	LastRun      time.Time
}
