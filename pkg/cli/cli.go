package cli

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type Config struct {
	Debug bool

	// ConfigPath is the YAML configuration file.
	ConfigPath string
	// DirectoryPath seeds the in-memory user directory and issue store.
	DirectoryPath string
	// DisableEmail starts the mail service without a sender, items are skipped.
	DisableEmail bool
	// DisableEvents keeps the Kafka listener from starting even when configured.
	DisableEvents bool
}

// BindFlags registers the flags with environment variable fallbacks.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&c.Debug, "debug", getEnvBool("ISSUEMAIL_DEBUG", false), "Enable debug level logging")
	fs.StringVar(&c.ConfigPath, "config-path", getEnvString("ISSUEMAIL_CONFIG_PATH", "./config.yaml"),
		"Path to the issuemail configuration file")
	fs.StringVar(&c.DirectoryPath, "directory-path", getEnvString("ISSUEMAIL_DIRECTORY_PATH", "./directory.yaml"),
		"Path to the YAML directory fixture with users, groups, issues and subscriptions")
	fs.BoolVar(&c.DisableEmail, "disable-email", getEnvBool("ISSUEMAIL_DISABLE_EMAIL", false),
		"Disable SMTP delivery; queued items are logged and skipped")
	fs.BoolVar(&c.DisableEvents, "disable-events", getEnvBool("ISSUEMAIL_DISABLE_EVENTS", false),
		"Do not consume domain events from Kafka")
}

func (c *Config) Print(log *zap.SugaredLogger) {
	log.Infow("CLI Configuration",
		"debug", c.Debug,
		"configPath", c.ConfigPath,
		"directoryPath", c.DirectoryPath,
		"disableEmail", c.DisableEmail,
		"disableEvents", c.DisableEvents,
	)
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}
