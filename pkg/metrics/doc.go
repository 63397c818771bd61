// Package metrics defines the Prometheus metrics of the notification mailer,
// from visibility lookups through SMTP delivery and consumed events, and
// exposes the default registry over HTTP.
package metrics
