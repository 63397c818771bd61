package templatecontext

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys used outside of templates.
const (
	MsgSubjectError       = "template.subject.error"
	MsgRenderError        = "template.render.error"
	MsgNoIssues           = "email.subscription.noissues"
	MsgTruncated          = "email.subscription.truncated"
	MsgRestrictedGroup    = "email.restricted.group"
	MsgRestrictedRole     = "email.restricted.role"
	MsgFooter             = "email.footer"
	MsgMentioned          = "email.mention.title"
	MsgUnassigned         = "common.unassigned"
	MsgAnonymous          = "common.anonymous"
	MsgSubscriptionHeader = "email.subscription.header"
	MsgSubscriber         = "email.subscription.subscriber"
	MsgViewAll            = "email.subscription.viewall"
	MsgEditSubscription   = "email.subscription.edit"
)

var supportedLocales = []language.Tag{language.English, language.German}

var messages = map[language.Tag]map[string]string{
	language.English: {
		MsgSubjectError:       "Could not render the subject of this message",
		MsgRenderError:        "(this content could not be rendered)",
		MsgNoIssues:           "There are no issues matching this filter.",
		MsgTruncated:          "Showing %d of %d issues.",
		MsgRestrictedGroup:    "Visible to members of %s only",
		MsgRestrictedRole:     "Visible to the %s role only",
		MsgFooter:             "This message was sent by %s.",
		MsgMentioned:          "%s mentioned you on %s",
		MsgUnassigned:         "Unassigned",
		MsgAnonymous:          "Anonymous",
		MsgSubscriptionHeader: "Filter subscription: %s",
		MsgSubscriber:         "Subscriber: %s",
		MsgViewAll:            "You may view all matched issues",
		MsgEditSubscription:   "You may edit this subscription",
	},
	language.German: {
		MsgSubjectError:       "Der Betreff dieser Nachricht konnte nicht erzeugt werden",
		MsgRenderError:        "(dieser Inhalt konnte nicht dargestellt werden)",
		MsgNoIssues:           "Es gibt keine Vorgänge, die diesem Filter entsprechen.",
		MsgTruncated:          "%d von %d Vorgängen werden angezeigt.",
		MsgRestrictedGroup:    "Nur für Mitglieder von %s sichtbar",
		MsgRestrictedRole:     "Nur für die Rolle %s sichtbar",
		MsgFooter:             "Diese Nachricht wurde von %s gesendet.",
		MsgMentioned:          "%s hat Sie in %s erwähnt",
		MsgUnassigned:         "Nicht zugewiesen",
		MsgAnonymous:          "Anonym",
		MsgSubscriptionHeader: "Filterabonnement: %s",
		MsgSubscriber:         "Abonnent: %s",
		MsgViewAll:            "Alle passenden Vorgänge anzeigen",
		MsgEditSubscription:   "Dieses Abonnement bearbeiten",
	},
}

var (
	messageCatalog = buildCatalog()
	localeMatcher  = language.NewMatcher(supportedLocales)
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range messages {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// I18nHelper translates message keys for one locale.
type I18nHelper struct {
	tag     language.Tag
	printer *message.Printer
}

// NewI18nHelper binds a helper to the closest supported locale. Unknown or
// unparsable locales fall back to English.
func NewI18nHelper(locale string) *I18nHelper {
	tag := language.English
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, _ := localeMatcher.Match(parsed)
			tag = supportedLocales[idx]
		}
	}
	return &I18nHelper{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(messageCatalog)),
	}
}

// Text formats the message for key. Keys without a translation are used as the format.
func (h *I18nHelper) Text(key string, args ...any) string {
	return h.printer.Sprintf(key, args...)
}

// Locale returns the BCP 47 tag the helper is bound to.
func (h *I18nHelper) Locale() string {
	return h.tag.String()
}
