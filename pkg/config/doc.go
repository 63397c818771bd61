// Package config loads the YAML configuration of the notification mailer and
// exposes the application property view used by the mail pipeline.
package config
