package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stokaro/resmigrate/cmd/internal/cliutil"
	"github.com/stokaro/resmigrate/server"
)

const (
	listenFlag     = "listen"
	consoleLogFlag = "console-log"
)

func NewServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the migration admin endpoints over HTTP",
		Long: `Start an HTTP server exposing:

  GET  /healthz                   database connectivity
  GET  /admin/migrations/diff     dry-run of the pending schema actions
  POST /admin/migrations/apply    execute the pending schema actions

The admin routes require the X-Admin-Key header to match RESMIGRATE_ADMIN_KEY and are
disabled when no key is configured.`,
		RunE: serveCommand,
	}

	flags := cliutil.PlanFlags()
	flags[listenFlag] = &cobraflags.StringFlag{
		Name:  listenFlag,
		Value: "",
		Usage: "Listen address, e.g. :8103",
	}
	cobraflags.RegisterMap(serveCmd, flags)
	cliutil.RegisterPolicyFlags(serveCmd)
	serveCmd.Flags().Bool(consoleLogFlag, false, "Human readable request logs instead of JSON")
	return serveCmd
}

func serveCommand(cmd *cobra.Command, _ []string) error {
	settings, err := cliutil.LoadSettings(cmd)
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if console, _ := cmd.Flags().GetBool(consoleLogFlag); console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(settings.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	opts, err := cliutil.PlanOptions(settings, cliutil.NewLogger(settings.LogLevel))
	if err != nil {
		return err
	}
	conn, err := cliutil.Connect(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info().Str("driver", conn.Driver()).Msg("connected to database")
	if settings.AdminKey == "" {
		logger.Warn().Msg("no admin key configured, admin endpoints are disabled")
	}

	srv := server.New(conn, server.Config{AdminKey: settings.AdminKey, Plan: opts}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(settings.ListenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
