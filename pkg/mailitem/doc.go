// Package mailitem holds the mail queue items: issue notifications,
// mentions, filter subscriptions and user account mails. Items are cheap to
// create; all rendering and recipient checks happen when the queue sends them.
package mailitem
