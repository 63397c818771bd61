// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/config"
)

const (
	// queueStopTimeout is the maximum time to wait for the queue to stop during reload
	queueStopTimeout = 30 * time.Second
)

// SenderFactory builds a Sender from mail configuration.
type SenderFactory func(cfg config.Mail, log *zap.SugaredLogger) Sender

// Service owns the mail queue and the current sender and supports hot-reload
// when the mail configuration changes.
type Service struct {
	logger    *zap.SugaredLogger
	newSender SenderFactory

	mu     sync.RWMutex
	queue  *Queue
	sender Sender
}

// NewService creates a new mail Service. A nil factory selects the SMTP sender.
func NewService(factory SenderFactory, logger *zap.SugaredLogger) *Service {
	if factory == nil {
		factory = NewSender
	}
	return &Service{
		logger:    logger.Named("mail-service"),
		newSender: factory,
	}
}

// Start initializes the queue and sender from cfg.
func (s *Service) Start(ctx context.Context, cfg config.Mail) error {
	return s.Reload(ctx, cfg)
}

// Reload replaces the queue and sender. Items waiting in the old queue get a
// final attempt through the new sender; the old error queue, including items
// that fail during that attempt, is carried over. With no host configured
// the queue still runs and items skip delivery.
func (s *Service) Reload(ctx context.Context, cfg config.Mail) error {
	var sender Sender
	if cfg.Disabled || cfg.Host == "" {
		s.logger.Warnw("No SMTP server configured - mail delivery disabled", "disabled", cfg.Disabled)
	} else {
		sender = WithCircuitBreaker(s.newSender(cfg, s.logger),
			breakerConfigFrom(cfg.BreakerFailures, cfg.BreakerOpenSeconds), s.logger)
		s.logger.Infow("Loading mail server", "host", cfg.Host, "port", cfg.Port)
	}

	queue := NewQueue(s.logger, QueueOptions{
		Host:             cfg.Host,
		MaxRetries:       cfg.RetryCount,
		InitialBackoffMs: cfg.RetryBackoffMs,
		MaxQueueSize:     cfg.QueueSize,
		SendsPerSecond:   cfg.SendsPerSecond,
	})
	queue.Start()

	s.mu.Lock()
	old := s.queue
	s.queue = queue
	s.sender = sender
	s.mu.Unlock()

	s.logger.Infow("Mail queue initialized and started",
		"enabled", sender != nil,
		"retryCount", cfg.RetryCount,
		"retryBackoffMs", cfg.RetryBackoffMs,
		"queueSize", cfg.QueueSize)

	if old != nil {
		s.retire(ctx, old, queue)
	}
	return nil
}

// retire stops old outside the service lock, since draining sends through
// Sender(). Its error queue moves to next once the drain is over, even when
// that outlasts the stop timeout.
func (s *Service) retire(ctx context.Context, old, next *Queue) {
	s.logger.Info("Stopping previous mail queue for reload")
	stopCtx, cancel := context.WithTimeout(ctx, queueStopTimeout)
	defer cancel()
	if err := old.Stop(stopCtx); err != nil {
		s.logger.Warnw("Previous mail queue still draining, error queue moves over when it finishes", "error", err)
		go func() {
			<-old.Done()
			next.adoptFailed(old)
		}()
		return
	}
	next.adoptFailed(old)
}

// AddItem adds an item to the mail queue. Before Start the item is dropped.
func (s *Service) AddItem(item Item) error {
	s.mu.RLock()
	queue := s.queue
	s.mu.RUnlock()

	if queue == nil {
		s.logger.Warnw("Mail queue not initialized, dropping item", "id", item.ID())
		return ErrQueueClosed
	}
	return queue.AddItem(item)
}

// Sender returns the active sender, or ErrNoServer.
func (s *Service) Sender() (Sender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sender == nil {
		return nil, ErrNoServer
	}
	return s.sender, nil
}

// IsEnabled returns whether a mail server is configured.
func (s *Service) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sender != nil
}

func (s *Service) Items(ctx context.Context) []ItemStatus {
	if q := s.current(); q != nil {
		return q.Items(ctx)
	}
	return []ItemStatus{}
}

func (s *Service) ErrorItems(ctx context.Context) []ItemStatus {
	if q := s.current(); q != nil {
		return q.ErrorItems(ctx)
	}
	return []ItemStatus{}
}

func (s *Service) Resend() (int, error) {
	if q := s.current(); q != nil {
		return q.Resend()
	}
	return 0, ErrQueueClosed
}

func (s *Service) current() *Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue
}

// Stop gracefully shuts down the mail service. The sender stays available
// so the final drain can still deliver.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()

	if queue == nil {
		return nil
	}
	s.logger.Info("Stopping mail service")
	return queue.Stop(ctx)
}
