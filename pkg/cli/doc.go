// Package cli defines the issuemail command tree (serve, version), its flags
// with environment fallbacks, and the wiring of the notification pipeline.
package cli
