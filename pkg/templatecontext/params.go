package templatecontext

// Parameter names shared with the mail templates.
const (
	KeyI18n             = "i18n"
	KeyDateFormatter    = "dateformatter"
	KeyLookAndFeel      = "lookandfeel"
	KeyBaseURL          = "baseurl"
	KeyApplicationTitle = "applicationTitle"
	KeyRecipient        = "recipient"

	KeyIssue           = "issue"
	KeyEventType       = "eventTypeName"
	KeyParams          = "params"
	KeyRemoteUser      = "remoteUser"
	KeyAttachments     = "attachments"
	KeyChangeLog       = "changelog"
	KeyChangeLogAuthor = "changelogauthor"
	KeyDiffUtils       = "diffutils"
	KeySecurity        = "security"

	KeyComment             = "comment"
	KeyHTMLComment         = "htmlComment"
	KeyOriginalComment     = "originalcomment"
	KeyOriginalHTMLComment = "originalhtmlComment"

	KeyWorklog             = "worklog"
	KeyHTMLWorklog         = "htmlWorklog"
	KeyOriginalWorklog     = "originalworklog"
	KeyOriginalHTMLWorklog = "originalhtmlWorklog"
	KeyTimeSpentUpdated    = "timeSpentUpdated"
	KeyStartDateUpdated    = "startDateUpdated"
	KeyCommentUpdated      = "commentUpdated"
	KeyVisibilityUpdated   = "visibilityUpdated"

	KeyMentionHTML = "mentionHtml"

	KeyUser            = "user"
	KeyApplicationName = "applicationName"

	KeyIssues           = "issues"
	KeyIssueTableHTML   = "issueTableHtml"
	KeyTotalIssueCount  = "totalIssueCount"
	KeyActualIssueCount = "actualIssueCount"
	KeyRequest          = "req"
	KeySubscription     = "subscription"
	KeyFilter           = "filter"
	KeySubscriber       = "subscriber"
	// KeyEditSubscriptionURL is only set for the subscription owner.
	KeyEditSubscriptionURL = "editSubscriptionUrl"
)

// OriginalContentKeys hold the pre-edit version of restricted content.
var OriginalContentKeys = []string{KeyOriginalComment, KeyOriginalHTMLComment, KeyOriginalWorklog, KeyOriginalHTMLWorklog}

// RestrictedContentKeys hold the current version of restricted content.
var RestrictedContentKeys = []string{KeyComment, KeyHTMLComment, KeyWorklog, KeyHTMLWorklog}

// Params maps template parameter names to values.
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Without returns a copy with the given keys removed. p is not modified.
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// With returns a copy of p with other's entries layered on top.
func (p Params) With(other Params) Params {
	out := make(Params, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}
