package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"
	"github.com/antibyte/stuck/pkg/storage"
	"github.com/antibyte/stuck/pkg/terminal"
	tlsmanager "github.com/antibyte/stuck/pkg/tls"
)

func cmdServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", configuration.GetString("Server", "listen_address", ":8080"), "HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	if created, err := configuration.EnsureFile(); err != nil {
		logger.Warn(logger.AreaConfig, "Could not write default configuration: %v", err)
	} else if created {
		logger.ConfigInfo("Wrote default configuration to %s", configuration.FilePath())
	}

	store, err := storage.Open(configuration.GetString("Storage", "database_path", "stuck.db"))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer store.Close()

	tlsMgr, err := tlsmanager.NewManager()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	server := terminal.NewServer(store)
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(stderr, "Playground listening on %s\n", *addr)
	if tlsMgr.IsEnabled() {
		fmt.Fprintf(stderr, "HTTPS enabled on %s\n", configuration.GetString("TLS", "https_address", ":8443"))
	}
	if err := tlsMgr.Serve(ctx, *addr, server.Handler()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	logger.Info(logger.AreaTerminal, "Playground stopped")
	return exitOK
}
