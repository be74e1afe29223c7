package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/interpctl"
)

type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the interpreter daemon",
		Long: `Run the interpreter daemon: HTTP API, process launcher and liveness prober.

Examples:
  interpctl serve                       # built-in defaults
  interpctl serve interpctl.toml
  interpctl serve --config=interpctl.toml --daemonize --pidfile=/run/interpctl.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(cmd.Context(), path, serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon pid to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func loadConfig(path string) (*interpctl.Config, error) {
	if path == "" {
		return interpctl.DefaultConfig()
	}
	return interpctl.LoadConfig(path)
}

func runServe(ctx context.Context, path string, flags *ServeFlags) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d, err := interpctl.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := d.Serve(); err != nil {
		_ = d.Close()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	d.Logger().Info("shutting down")
	if flags.PidFile != "" {
		_ = removePidFile(flags.PidFile)
	}
	return d.Close()
}
