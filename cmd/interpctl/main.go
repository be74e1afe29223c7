package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/interpctl/pkg/client"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags are shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	ProjectID  int64
}

func (g *GlobalFlags) client() *client.Client {
	return client.New(client.Config{BaseURL: g.APIUrl, ProjectID: g.ProjectID, Timeout: g.APITimeout})
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "interpctl",
		Short: "Interpreter lifecycle daemon and client",
		Long: `interpctl launches, stops and probes notebook interpreter processes per project.

Examples:
  interpctl serve --config=interpctl.toml
  interpctl project add analytics
  interpctl setting add --group=python --project=1
  interpctl start <setting-id> --project=1
  interpctl status --project=1`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	pf.StringVar(&flags.APIUrl, "api-url", client.DefaultBaseURL, "daemon API base URL")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 11*time.Minute, "API request timeout")
	pf.Int64Var(&flags.ProjectID, "project", 0, "project id sent as the projectID cookie")

	root.AddCommand(
		createServeCommand(flags),
		createProjectCommand(flags),
		createSettingCommand(flags),
		createTypesCommand(flags),
		createStartCommand(flags),
		createStopCommand(flags),
		createRestartCommand(flags),
		createStatusCommand(flags),
	)
	return root
}
