// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/system"
)

// MockSender records sent emails.
type MockSender struct {
	mu     sync.Mutex
	host   string
	err    error
	emails []Email
}

func (m *MockSender) Send(_ context.Context, email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.emails = append(m.emails, email)
	return nil
}

func (m *MockSender) Emails() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.emails...)
}

func (m *MockSender) GetHost() string { return m.host }

func (m *MockSender) GetPort() int { return 25 }

func mockFactory(s *MockSender) SenderFactory {
	return func(cfg config.Mail, _ *zap.SugaredLogger) Sender {
		s.host = cfg.Host
		return s
	}
}

func TestNewService(t *testing.T) {
	svc := NewService(nil, system.NewTestLogger())
	assert.NotNil(t, svc)
	assert.False(t, svc.IsEnabled())

	_, err := svc.Sender()
	assert.ErrorIs(t, err, ErrNoServer)
	assert.ErrorIs(t, svc.AddItem(&fakeItem{id: "x"}), ErrQueueClosed)
	assert.Empty(t, svc.Items(context.Background()))
	assert.Empty(t, svc.ErrorItems(context.Background()))
	_, err = svc.Resend()
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.NoError(t, svc.Stop(context.Background()))
}

func TestService_StartWithoutServer(t *testing.T) {
	svc := NewService(mockFactory(&MockSender{}), system.NewTestLogger())
	require.NoError(t, svc.Start(context.Background(), config.Mail{}))
	defer func() { _ = svc.Stop(context.Background()) }()

	assert.False(t, svc.IsEnabled())
	_, err := svc.Sender()
	assert.ErrorIs(t, err, ErrNoServer)

	item := &fakeItem{id: "skip"}
	require.NoError(t, svc.AddItem(item))
	assert.Eventually(t, func() bool { return item.Sends() == 1 }, time.Second, 5*time.Millisecond)
}

func TestService_DisabledIgnoresHost(t *testing.T) {
	svc := NewService(mockFactory(&MockSender{}), system.NewTestLogger())
	require.NoError(t, svc.Start(context.Background(), config.Mail{Host: "smtp.test", Disabled: true}))
	defer func() { _ = svc.Stop(context.Background()) }()

	assert.False(t, svc.IsEnabled())
}

func TestService_StartWithServer(t *testing.T) {
	mock := &MockSender{}
	svc := NewService(mockFactory(mock), system.NewTestLogger())
	require.NoError(t, svc.Start(context.Background(), config.Mail{Host: "smtp.test", Port: 25}))
	defer func() { _ = svc.Stop(context.Background()) }()

	assert.True(t, svc.IsEnabled())
	s, err := svc.Sender()
	require.NoError(t, err)
	assert.Equal(t, "smtp.test", s.GetHost())
}

func TestService_ReloadKeepsErrorQueue(t *testing.T) {
	svc := NewService(mockFactory(&MockSender{}), system.NewTestLogger())
	cfg := config.Mail{Host: "smtp.test", RetryCount: 1, RetryBackoffMs: 1}
	require.NoError(t, svc.Start(context.Background(), cfg))
	defer func() { _ = svc.Stop(context.Background()) }()

	item := &fakeItem{id: "stuck", failures: -1}
	require.NoError(t, svc.AddItem(item))
	require.Eventually(t, func() bool { return len(svc.ErrorItems(context.Background())) == 1 }, time.Second, 5*time.Millisecond)

	cfg.Host = "smtp2.test"
	require.NoError(t, svc.Reload(context.Background(), cfg))

	s, err := svc.Sender()
	require.NoError(t, err)
	assert.Equal(t, "smtp2.test", s.GetHost())
	require.Len(t, svc.ErrorItems(context.Background()), 1)

	item.SetFailures(0)
	n, err := svc.Resend()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Eventually(t, func() bool { return len(svc.Items(context.Background())) == 0 }, time.Second, 5*time.Millisecond)
}

func TestService_Stop(t *testing.T) {
	svc := NewService(mockFactory(&MockSender{}), system.NewTestLogger())
	require.NoError(t, svc.Start(context.Background(), config.Mail{Host: "smtp.test"}))

	require.NoError(t, svc.Stop(context.Background()))
	assert.ErrorIs(t, svc.AddItem(&fakeItem{id: "late"}), ErrQueueClosed)
}

func TestService_SenderIsGuardedByBreaker(t *testing.T) {
	mock := &MockSender{err: errSMTP}
	svc := NewService(mockFactory(mock), system.NewTestLogger())
	require.NoError(t, svc.Start(context.Background(), config.Mail{Host: "breaker.test", BreakerFailures: 1, BreakerOpenSeconds: 3600}))
	defer func() { _ = svc.Stop(context.Background()) }()

	s, err := svc.Sender()
	require.NoError(t, err)
	email := Email{To: []string{"alice@example.com"}}
	assert.ErrorIs(t, s.Send(context.Background(), email), errSMTP)
	assert.ErrorIs(t, s.Send(context.Background(), email), ErrCircuitOpen)
}

// senderItem looks up the active sender on every send like the real items do.
type senderItem struct {
	fakeItem
	svc *Service
}

func (s *senderItem) Send(ctx context.Context) error {
	sender, err := s.svc.Sender()
	if err != nil {
		return err
	}
	if err := s.fakeItem.Send(ctx); err != nil {
		return err
	}
	return sender.Send(ctx, Email{To: []string{"alice@example.com"}, Subject: s.id})
}

func TestService_ReloadDrainsThroughNewSender(t *testing.T) {
	svc := NewService(mockFactory(&MockSender{}), system.NewTestLogger())
	cfg := config.Mail{Host: "smtp.test", RetryCount: 5, RetryBackoffMs: 60000}
	require.NoError(t, svc.Start(context.Background(), cfg))
	defer func() { _ = svc.Stop(context.Background()) }()

	item := &senderItem{fakeItem: fakeItem{id: "retrying", failures: -1}, svc: svc}
	require.NoError(t, svc.AddItem(item))
	require.Eventually(t, func() bool { return item.Sends() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	cfg.Host = "smtp2.test"
	require.NoError(t, svc.Reload(ctx, cfg))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, item.Sends())
	failed := svc.ErrorItems(context.Background())
	require.Len(t, failed, 1)
	assert.Equal(t, "retrying", failed[0].ID)
	assert.Empty(t, svc.Items(context.Background()))
}

func TestService_StopDeliversPendingItems(t *testing.T) {
	mock := &MockSender{}
	svc := NewService(mockFactory(mock), system.NewTestLogger())
	require.NoError(t, svc.Start(context.Background(), config.Mail{Host: "smtp.test", RetryCount: 5, RetryBackoffMs: 60000}))

	item := &senderItem{fakeItem: fakeItem{id: "late", failures: 1}, svc: svc}
	require.NoError(t, svc.AddItem(item))
	require.Eventually(t, func() bool { return item.Sends() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, svc.Stop(ctx))

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, mock.Emails(), 1)
	assert.Equal(t, "late", mock.Emails()[0].Subject)
}

func TestService_ErrorQueueFollowsSlowDrain(t *testing.T) {
	svc := NewService(mockFactory(&MockSender{}), system.NewTestLogger())
	cfg := config.Mail{Host: "smtp.test", RetryCount: 5, RetryBackoffMs: 60000}
	require.NoError(t, svc.Start(context.Background(), cfg))
	defer func() { _ = svc.Stop(context.Background()) }()

	release := make(chan struct{})
	slow := &blockingItem{fakeItem: fakeItem{id: "slow", failures: -1}, release: release}
	require.NoError(t, svc.AddItem(slow))
	require.Eventually(t, func() bool { return slow.Sends() == 1 }, time.Second, 5*time.Millisecond)
	slow.block()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.Reload(ctx, cfg))
	assert.Empty(t, svc.ErrorItems(context.Background()))

	close(release)
	assert.Eventually(t, func() bool { return len(svc.ErrorItems(context.Background())) == 1 }, time.Second, 5*time.Millisecond)
}

// blockingItem holds its sends until release is closed once block was called.
type blockingItem struct {
	fakeItem
	release chan struct{}

	blockMu sync.Mutex
	blocks  bool
}

func (b *blockingItem) block() {
	b.blockMu.Lock()
	defer b.blockMu.Unlock()
	b.blocks = true
}

func (b *blockingItem) Send(ctx context.Context) error {
	b.blockMu.Lock()
	blocks := b.blocks
	b.blockMu.Unlock()
	if blocks {
		<-b.release
	}
	return b.fakeItem.Send(ctx)
}
