// Package api implements the admin HTTP server (Gin-based) of the notification
// mailer: mail queue inspection, error queue resend, reply threading lookups,
// Prometheus metrics and health.
package api
