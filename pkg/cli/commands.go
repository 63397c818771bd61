package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/domain/memstore"
	"github.com/telekom/issuemail/pkg/system"
	"github.com/telekom/issuemail/pkg/version"
)

func NewRootCommand(out io.Writer) *cobra.Command {
	c := &Config{}
	root := &cobra.Command{
		Use:           "issuemail",
		Short:         "Issue tracker notification mailer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	c.BindFlags(root.PersistentFlags())

	root.AddCommand(newServeCommand(c), newVersionCommand())
	return root
}

func newServeCommand(c *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume issue events and deliver notification mail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := system.NewLogger(c.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			log.With("version", version.Version).Info("Starting issuemail")
			c.Print(log)

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, err := loadDirectory(c.DirectoryPath, log)
			if err != nil {
				return err
			}
			app, err := NewApp(cfg, store, log, AppOptions{DisableEvents: c.DisableEvents})
			if err != nil {
				return err
			}
			return serve(cmd.Context(), c, app, log)
		},
	}
}

func serve(parent context.Context, c *Config, app *App, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	serverErr := make(chan error, 1)
	go func() { serverErr <- app.Server.Listen(ctx) }()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-hup:
			cfg, err := loadConfig(c)
			if err != nil {
				log.Errorw("Reloading configuration failed, keeping the current one", "error", err)
				continue
			}
			if err := app.Reload(ctx, cfg); err != nil {
				log.Errorw("Reloading mail service failed", "error", err)
				continue
			}
			log.Info("Configuration reloaded")
		case err := <-serverErr:
			if err != nil {
				runErr = fmt.Errorf("admin server: %w", err)
			}
			break loop
		}
	}

	stop()
	if err := app.Stop(app.Config.Server.GetShutdownTimeout()); err != nil {
		log.Warnw("Mail queue did not drain cleanly", "error", err)
	}
	log.Info("issuemail stopped")
	return runErr
}

func loadConfig(c *Config) (config.Config, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg.Defaults()
	if c.DisableEmail {
		cfg.Mail.Disabled = true
	}
	if c.Debug {
		cfg.Server.Debug = true
	}
	return cfg, nil
}

// loadDirectory seeds the store. A missing fixture starts with an empty directory.
func loadDirectory(path string, log *zap.SugaredLogger) (*memstore.Store, error) {
	store, err := memstore.LoadFixture(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warnw("Directory fixture not found, starting with an empty directory", "path", path)
		return memstore.New(), nil
	}
	return store, err
}

func newVersionCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build information as JSON")
	return cmd
}
