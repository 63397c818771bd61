package domain

import (
	"strings"
)

// Format is the notification format a recipient wants to receive.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// MimeType returns the content type used for a body in this format.
func (f Format) MimeType() string {
	if f == FormatHTML {
		return "text/html"
	}
	return "text/plain"
}

// Recipient is a resolved user or a bare email address together with the
// format it wants notifications in. Recipients are immutable.
type Recipient struct {
	user   *User
	email  string
	format Format
}

func NewUserRecipient(u *User, format Format) Recipient {
	r := Recipient{user: u, format: format}
	if u != nil {
		r.email = u.Email
	}
	return r
}

func NewEmailRecipient(email string, format Format) Recipient {
	return Recipient{email: email, format: format}
}

// User returns the resolved user, or nil for a bare address.
func (r Recipient) User() *User { return r.user }

func (r Recipient) Email() string { return r.email }

func (r Recipient) IsUser() bool { return r.user != nil }

// Format returns the declared format, defaulting to plain text.
func (r Recipient) Format() Format {
	if r.format == "" {
		return FormatText
	}
	return r.format
}

// Locale returns the recipient's locale, empty for bare addresses.
func (r Recipient) Locale() string {
	if r.user == nil {
		return ""
	}
	return r.user.Locale
}

// Key identifies a recipient for de-duplication.
func (r Recipient) Key() string {
	if r.user != nil && r.user.Name != "" {
		return "user:" + r.user.Name
	}
	return "email:" + strings.ToLower(r.email)
}

func (r Recipient) String() string {
	if r.user != nil {
		return r.user.Name + " <" + r.email + ">"
	}
	return r.email
}
