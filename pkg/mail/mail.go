package mail

import (
	"context"
	"crypto/tls"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/metrics"
	"github.com/telekom/issuemail/pkg/version"
)

const (
	MimeText = "text/plain"
	MimeHTML = "text/html"
)

// Email is one outgoing message.
type Email struct {
	To       []string
	Bcc      []string
	Subject  string
	Body     string
	MimeType string
	// Charset defaults to UTF-8.
	Charset    string
	MessageID  string
	InReplyTo  string
	References []string
}

func (e Email) receivers() int { return len(e.To) + len(e.Bcc) }

type Sender interface {
	Send(ctx context.Context, email Email) error
	GetHost() string
	GetPort() int
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type sender struct {
	dialer         dialer
	host           string
	port           int
	senderAddress  string
	senderName     string
	retryCount     int
	retryBackoffMs int
	log            *zap.SugaredLogger
}

func NewSender(cfg config.Mail, log *zap.SugaredLogger) Sender {
	log = log.Named("mail-sender")
	log.Infow("Initializing new mail sender", "host", cfg.Host, "port", cfg.Port, "user", cfg.User)
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warn("InsecureSkipVerify is enabled for mail TLS connection")
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}
	return newSender(d, cfg, log)
}

func newSender(d dialer, cfg config.Mail, log *zap.SugaredLogger) *sender {
	senderAddr := cfg.SenderAddress
	if senderAddr == "" {
		senderAddr = "noreply@localhost"
	}
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = "Issue Tracker"
	}

	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryBackoffMs := cfg.RetryBackoffMs
	if retryBackoffMs <= 0 {
		retryBackoffMs = 100
	}

	log.Debugw("Retry configuration", "count", retryCount, "initialBackoffMs", retryBackoffMs)

	return &sender{
		dialer:         d,
		host:           cfg.Host,
		port:           cfg.Port,
		senderAddress:  senderAddr,
		senderName:     senderName,
		retryCount:     retryCount,
		retryBackoffMs: retryBackoffMs,
		log:            log,
	}
}

func (s *sender) message(email Email) *gomail.Message {
	charset := email.Charset
	if charset == "" {
		charset = "UTF-8"
	}
	mime := email.MimeType
	if mime == "" {
		mime = MimeText
	}
	msg := gomail.NewMessage(gomail.SetCharset(charset))
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	if len(email.To) > 0 {
		msg.SetHeader("To", email.To...)
	}
	if len(email.Bcc) > 0 {
		msg.SetHeader("Bcc", email.Bcc...)
	}
	msg.SetHeader("Subject", email.Subject)
	msg.SetHeader("X-Mailer", version.GetBuildInfo().Mailer())
	if email.MessageID != "" {
		msg.SetHeader("Message-ID", email.MessageID)
	}
	if email.InReplyTo != "" {
		msg.SetHeader("In-Reply-To", email.InReplyTo)
	}
	if len(email.References) > 0 {
		msg.SetHeader("References", strings.Join(email.References, " "))
	}
	msg.SetBody(mime, email.Body)
	return msg
}

func (s *sender) Send(ctx context.Context, email Email) error {
	if email.receivers() == 0 {
		return ErrNoRecipients
	}
	s.log.Debugw("Preparing to send mail", "receivers", email.receivers(), "subject", email.Subject)
	msg := s.message(email)

	var lastErr error
	backoffMs := s.retryBackoffMs

	for attempt := 0; attempt <= s.retryCount; attempt++ {
		err := s.dialer.DialAndSend(msg)
		if err == nil {
			s.log.Debugw("Mail sent", "receivers", email.receivers(), "attempt", attempt+1)
			metrics.MailSendSuccess.WithLabelValues(s.GetHost()).Inc()
			return nil
		}

		lastErr = err
		if attempt == s.retryCount {
			s.log.Warnw("Failed to send mail after all attempts", "attempts", s.retryCount+1, "error", err)
			break
		}
		s.log.Debugw("Send attempt failed, retrying", "attempt", attempt+1, "error", err, "backoffMs", backoffMs)
		select {
		case <-ctx.Done():
			metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
			return ctx.Err()
		case <-time.After(time.Duration(backoffMs) * time.Millisecond):
		}
		backoffMs = int(math.Min(float64(backoffMs)*2, 32000))
	}

	metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
	return lastErr
}

func (s *sender) GetHost() string {
	return s.host
}

func (s *sender) GetPort() int {
	return s.port
}
