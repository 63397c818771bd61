// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/api"
	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/domain/memstore"
	"github.com/telekom/issuemail/pkg/events"
	"github.com/telekom/issuemail/pkg/mail"
	"github.com/telekom/issuemail/pkg/mailitem"
	"github.com/telekom/issuemail/pkg/notification"
	"github.com/telekom/issuemail/pkg/stylecache"
	"github.com/telekom/issuemail/pkg/system"
	"github.com/telekom/issuemail/pkg/telemetry"
	"github.com/telekom/issuemail/pkg/templatecontext"
	"github.com/telekom/issuemail/pkg/version"
	"github.com/telekom/issuemail/pkg/visibility"
)

// App is the wired notification mailer.
type App struct {
	Config     config.Config
	Lifecycle  *system.Lifecycle
	Store      *memstore.Store
	Mail       *mail.Service
	Styles     *stylecache.Cache
	Threader   *mail.Threader
	Compiler   *notification.Compiler
	Dispatcher *events.Dispatcher
	Listener   *events.Listener
	Server     *api.Server

	shutdownTracing telemetry.ShutdownFunc
	log             *zap.SugaredLogger
}

// AppOptions tune NewApp. The zero value wires SMTP delivery and Kafka as configured.
type AppOptions struct {
	DisableEvents bool
	// SenderFactory replaces the SMTP sender, e.g. in tests.
	SenderFactory mail.SenderFactory
	// Reader replaces the Kafka reader built from the configuration.
	Reader events.MessageReader
}

func NewApp(cfg config.Config, store *memstore.Store, log *zap.SugaredLogger, opts AppOptions) (*App, error) {
	engine, err := mail.NewTemplateEngine()
	if err != nil {
		return nil, fmt.Errorf("loading mail templates: %w", err)
	}

	lc := system.NewLifecycle()
	props := config.StaticProperties(cfg.Properties)
	assembler := templatecontext.NewAssembler(cfg, templatecontext.NewGoldmarkRenderer(), store, log).WithProperties(props)

	styles := stylecache.New(log, stylecache.WithIdle(cfg.Notification.StyleIdle()))
	stylecache.NewSweeper(styles, log).Register(lc)

	service := mail.NewService(opts.SenderFactory, log)
	threader := mail.NewThreader(cfg.Mail.Domain, store, log)
	classifier := visibility.NewClassifier(store, store, log)

	deps := mailitem.Deps{
		Templates:   engine,
		Assembler:   assembler,
		MailingList: notification.NewMailingListCompiler(engine, assembler, styles, props, log),
		Servers:     service,
		Threader:    threader,
		Users:       store,
		Groups:      store,
		Permissions: store,
		Filters:     store,
		Visibility:  classifier,
		Log:         log,
	}
	compiler := notification.NewCompiler(visibility.NewGrouper(classifier), assembler, mailitem.NewBuilder(deps), service, log)
	dispatcher := events.NewDispatcher(store, compiler, service, deps, log)

	app := &App{
		Config:     cfg,
		Lifecycle:  lc,
		Store:      store,
		Mail:       service,
		Styles:     styles,
		Threader:   threader,
		Compiler:   compiler,
		Dispatcher: dispatcher,
		log:        log.Named("app"),
	}

	if !opts.DisableEvents {
		reader := opts.Reader
		if reader == nil && cfg.Kafka.Enabled() {
			kr, err := events.NewReader(cfg.Kafka)
			if err != nil {
				return nil, fmt.Errorf("creating event reader: %w", err)
			}
			reader = kr
		}
		if reader != nil {
			app.Listener = events.NewListener(reader, dispatcher, log)
			app.Listener.Register(lc)
		}
	}

	app.Server = api.NewServer(log.Desugar(), cfg)
	err = app.Server.RegisterAll([]api.APIController{
		api.NewMailQueueController(service, log),
		api.NewReplyController(threader, log),
	})
	if err != nil {
		return nil, fmt.Errorf("registering admin controllers: %w", err)
	}
	return app, nil
}

// Start initialises tracing, starts the mail queue and fires the lifecycle start hooks.
func (a *App) Start(ctx context.Context) error {
	_, shutdown, err := telemetry.Init(ctx, telemetry.OptionsFromConfig(a.Config.Telemetry, version.Version, a.log))
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	a.shutdownTracing = shutdown
	if err := a.Mail.Start(ctx, a.Config.Mail); err != nil {
		return fmt.Errorf("starting mail service: %w", err)
	}
	a.Lifecycle.Started()
	a.log.Infow("Notification mailer started", "kafka", a.Listener != nil, "mail", a.Mail.IsEnabled())
	return nil
}

// Reload applies a changed mail configuration without losing queued items.
func (a *App) Reload(ctx context.Context, cfg config.Config) error {
	a.Config.Mail = cfg.Mail
	return a.Mail.Reload(ctx, cfg.Mail)
}

// Stop runs the shutdown hooks, drains the mail queue and flushes pending spans.
func (a *App) Stop(timeout time.Duration) error {
	a.Lifecycle.Stopping()
	a.Server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := a.Mail.Stop(ctx)
	if a.shutdownTracing != nil {
		err = errors.Join(err, a.shutdownTracing(ctx))
	}
	return err
}
