package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Application property keys understood by the notification pipeline.
const (
	// PropMailMaxIssues bounds the number of issues rendered into a filter subscription email.
	PropMailMaxIssues = "jira.subscription.email.max.issues"
	// PropRecipientBatchSize bounds the number of Bcc recipients per outgoing message.
	PropRecipientBatchSize = "jira.sendmail.recipient.batch.size"
	// PropMailEncoding is the charset used for rendered mail bodies.
	PropMailEncoding = "jira.i18n.email.encoding"
)

type Mail struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	SenderAddress      string `yaml:"senderAddress"`
	SenderName         string `yaml:"senderName"`
	// Domain is used as the right hand side of generated Message-IDs.
	Domain         string `yaml:"domain"`
	RetryCount     int    `yaml:"retryCount"`
	RetryBackoffMs int    `yaml:"retryBackoffMs"`
	QueueSize      int    `yaml:"queueSize"`
	// SendsPerSecond throttles the queue worker. Zero disables throttling.
	SendsPerSecond float64 `yaml:"sendsPerSecond"`
	Disabled       bool    `yaml:"disabled"`
	// BreakerFailures consecutive failed sends pause delivery for BreakerOpenSeconds.
	BreakerFailures    int `yaml:"breakerFailures"`
	BreakerOpenSeconds int `yaml:"breakerOpenSeconds"`
}

type Notification struct {
	// StyleIdleSeconds is how long the parsed stylesheet survives without being used.
	StyleIdleSeconds int    `yaml:"styleIdleSeconds"`
	DefaultLocale    string `yaml:"defaultLocale"`
	TimeZone         string `yaml:"timeZone"`
	DateTimeFormat   string `yaml:"dateTimeFormat"`
}

type Frontend struct {
	BaseURL string `yaml:"baseURL"`
	// ContextPath is the path prefix the application is served under, e.g. "/jira".
	ContextPath      string `yaml:"contextPath"`
	BrandingName     string `yaml:"brandingName"`
	LogoURL          string `yaml:"logoURL"`
	HeaderColour     string `yaml:"headerColour"`
	LinkColour       string `yaml:"linkColour"`
	ApplicationTitle string `yaml:"applicationTitle"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupID"`
	// SASLMechanism is one of PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512. Empty disables SASL.
	SASLMechanism string    `yaml:"saslMechanism"`
	Username      string    `yaml:"username"`
	Password      string    `yaml:"password"`
	TLS           *KafkaTLS `yaml:"tls"`
}

type KafkaTLS struct {
	CAFile             string `yaml:"caFile"`
	CertFile           string `yaml:"certFile"`
	KeyFile            string `yaml:"keyFile"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// Enabled reports whether the listener should consume events at all.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type Server struct {
	ListenAddress string `yaml:"listenAddress"`
	TLSCertFile   string `yaml:"tlsCertFile"`
	TLSKeyFile    string `yaml:"tlsKeyFile"`
	// AdminUser and AdminPassword protect the admin endpoints with basic auth when both are set.
	AdminUser     string `yaml:"adminUser"`
	AdminPassword string `yaml:"adminPassword"`
	Debug         bool   `yaml:"debug"`
	// RateLimit throttles the admin endpoints per client.
	RateLimit       RateLimit       `yaml:"rateLimit"`
	Timeouts        *ServerTimeouts `yaml:"timeouts"`
	ShutdownTimeout string          `yaml:"shutdownTimeout"`
}

type RateLimit struct {
	Disabled          bool    `yaml:"disabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

type Telemetry struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
	// Exporter is one of otlp, stdout or none.
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"samplingRate"`
}

type Config struct {
	Server       Server
	Frontend     Frontend
	Mail         Mail
	Notification Notification
	Kafka        Kafka
	Telemetry    Telemetry
	// Properties are free-form application properties, looked up by key.
	Properties map[string]string `yaml:"properties"`
}

// Load loads the configuration from a file path.
// If configPath is empty, defaults to "./config.yaml".
// The path can also be overridden via the ISSUEMAIL_CONFIG_PATH environment variable.
func Load(configPath ...string) (Config, error) {
	var path string

	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	} else if env := os.Getenv("ISSUEMAIL_CONFIG_PATH"); env != "" {
		path = env
	} else {
		path = "./config.yaml"
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open issuemail config file %s: %w", path, err)
	}

	err = yaml.Unmarshal(content, &config)
	if err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
	}
	return config, nil
}

// Defaults fills every unset field with its default value.
func (c *Config) Defaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 25
	}
	if c.Mail.SenderAddress == "" {
		c.Mail.SenderAddress = "noreply@localhost"
	}
	if c.Mail.SenderName == "" {
		c.Mail.SenderName = c.Frontend.BrandingName
	}
	if c.Mail.SenderName == "" {
		c.Mail.SenderName = "Issue Tracker"
	}
	if c.Mail.Domain == "" {
		c.Mail.Domain = "localhost"
		if at := strings.LastIndex(c.Mail.SenderAddress, "@"); at >= 0 && at < len(c.Mail.SenderAddress)-1 {
			c.Mail.Domain = c.Mail.SenderAddress[at+1:]
		}
	}
	if c.Notification.StyleIdleSeconds <= 0 {
		c.Notification.StyleIdleSeconds = 30
	}
	if c.Notification.DefaultLocale == "" {
		c.Notification.DefaultLocale = "en"
	}
	if c.Notification.TimeZone == "" {
		c.Notification.TimeZone = "UTC"
	}
	if c.Notification.DateTimeFormat == "" {
		c.Notification.DateTimeFormat = "02/Jan/06 15:04"
	}
	if c.Frontend.ApplicationTitle == "" {
		c.Frontend.ApplicationTitle = c.Frontend.BrandingName
	}
	if c.Frontend.ApplicationTitle == "" {
		c.Frontend.ApplicationTitle = "Issue Tracker"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "issuemail"
	}
	if c.Server.RateLimit.RequestsPerSecond <= 0 {
		c.Server.RateLimit.RequestsPerSecond = 20
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = 50
	}
	if c.Telemetry.SamplingRate <= 0 {
		c.Telemetry.SamplingRate = 1.0
	}
	if c.Properties == nil {
		c.Properties = map[string]string{}
	}
}

// StyleIdle returns the stylesheet idle expiry as a duration.
func (n Notification) StyleIdle() time.Duration {
	return time.Duration(n.StyleIdleSeconds) * time.Second
}

// Location resolves the configured time zone, falling back to UTC.
func (n Notification) Location() *time.Location {
	loc, err := time.LoadLocation(n.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Properties is a read-only view of application properties.
type Properties interface {
	String(key string) (string, bool)
}

// StaticProperties serves application properties from a map.
type StaticProperties map[string]string

func (p StaticProperties) String(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// IntProperty parses an integer property. ok is false when the key is unset or not a number.
func IntProperty(props Properties, key string) (value int, ok bool) {
	if props == nil {
		return 0, false
	}
	raw, found := props.String(key)
	if !found {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}
