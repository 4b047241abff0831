package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/cs414s24/contacts/cli/api"
	"github.com/cs414s24/contacts/cli/logger"
	"github.com/cs414s24/contacts/cli/tui"
	"github.com/cs414s24/contacts/console"
	"github.com/cs414s24/contacts/contacts"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	title    = "Contacts"
	version  = "dev"
	revision = "unknown"
	created  = "unknown"
)

// Options for the CLI. Pass `--port` or set the `SERVICE_PORT` env var.
type Options struct {
	logger.Options
	api.ServerOptions
	api.RouterOptions
	api.StoreOptions
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		logger := logger.New(&options.Options, os.Stdout)
		srv := api.NewServer(&options.ServerOptions, nil, logger)

		hooks.OnStart(func() {
			db, err := api.OpenDatabase(context.Background(), &options.StoreOptions)
			if err != nil {
				logger.Error("failed to open the store", "err", err)
				return
			}
			// closing the store ends the realtime streams still being served
			defer db.Close()

			srv.Handler = api.NewRouter(&options.RouterOptions, title, version, revision, created,
				contacts.NewBook(db), logger)
			logger.Info("listening", "addr", srv.Addr, "store", options.Store)
			err = srv.ListenAndServe()
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error("failed to listen and serve", "err", err)
			} else {
				logger.Info("server closed")
			}
		})
		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			err := srv.Shutdown(ctx)
			if err != nil {
				logger.Warn("could not shutdown the server", "err", err)
			}
		})
	})

	root := cli.Root()
	root.Use = "contacts"
	root.Version = version

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Edit contacts in the terminal",
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, options *Options) {
			if err := runTUI(cmd, options); err != nil {
				cmd.PrintErrln("error:", err)
				os.Exit(1)
			}
		}),
	}
	tuiCmd.Flags().String("remote", "", "base URL of a contacts API, e.g. http://localhost:8888/api/contacts")
	root.AddCommand(tuiCmd)

	cli.Run()
}

// runTUI shows the contacts screen over a remote API when --remote is set,
// otherwise over the configured store.
func runTUI(cmd *cobra.Command, options *Options) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout belongs to the screen
	logger := logger.New(&options.Options, nil)

	remote, err := cmd.Flags().GetString("remote")
	if err != nil {
		return err
	}

	var gateway console.Gateway
	if remote != "" {
		gateway = contacts.NewClient(remote)
		logger.Info("using remote contacts", "url", remote)
	} else {
		db, err := api.OpenDatabase(ctx, &options.StoreOptions)
		if err != nil {
			return err
		}
		defer db.Close()
		gateway = contacts.NewBook(db)
		logger.Info("using local contacts", "store", options.Store)
	}

	err = tui.Run(ctx, gateway, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.LogAttrs(ctx, slog.LevelError, "screen failed", slog.Any("err", err))
		return err
	}
	return nil
}
