package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/interpctl/internal/project"
	"github.com/loykin/interpctl/internal/store/factory"
	"github.com/loykin/interpctl/pkg/client"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

// parseProps turns repeated key=value flags into a map.
func parseProps(kvs []string) (map[string]string, error) {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, found := strings.Cut(kv, "=")
		if !found || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid property %q, want key=value", kv)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// createProjectCommand manages the project registry directly in the configured store.
func createProjectCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects in the configured store",
	}
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := project.CheckName(args[0]); err != nil {
				return err
			}
			cfg, err := loadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			st, err := factory.NewFromDSN(cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			if err := st.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			p, err := st.CreateProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), p)
			return nil
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			st, err := factory.NewFromDSN(cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			if err := st.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			ps, err := st.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if ps == nil {
				ps = []project.Project{}
			}
			printJSON(cmd.OutOrStdout(), ps)
			return nil
		},
	}
	cmd.AddCommand(add, list)
	return cmd
}

type SettingFlags struct {
	Name  string
	Group string
	Props []string
}

func createSettingCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Manage interpreter settings of a project via the daemon",
	}

	list := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ss, err := globalFlags.client().Settings(cmd.Context())
			if err != nil {
				return err
			}
			if ss == nil {
				ss = []client.Setting{}
			}
			printJSON(cmd.OutOrStdout(), ss)
			return nil
		},
	}

	addFlags := &SettingFlags{}
	add := &cobra.Command{
		Use:  "add",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			props, err := parseProps(addFlags.Props)
			if err != nil {
				return err
			}
			s, err := globalFlags.client().CreateSetting(cmd.Context(), client.SettingRequest{
				Name: addFlags.Name, Group: addFlags.Group, Properties: props,
			})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), s)
			return nil
		},
	}
	add.Flags().StringVar(&addFlags.Name, "name", "", "setting name (defaults to the group)")
	add.Flags().StringVar(&addFlags.Group, "group", "", "registered interpreter group")
	add.Flags().StringArrayVar(&addFlags.Props, "prop", nil, "property key=value (repeatable)")
	_ = add.MarkFlagRequired("group")

	updateFlags := &SettingFlags{}
	update := &cobra.Command{
		Use:   "update SETTING_ID",
		Short: "Replace the properties of a setting and restart it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseProps(updateFlags.Props)
			if err != nil {
				return err
			}
			s, err := globalFlags.client().UpdateSetting(cmd.Context(), args[0], client.SettingRequest{Properties: props})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), s)
			return nil
		},
	}
	update.Flags().StringArrayVar(&updateFlags.Props, "prop", nil, "property key=value (repeatable)")

	remove := &cobra.Command{
		Use:     "rm SETTING_ID",
		Aliases: []string{"remove"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return globalFlags.client().RemoveSetting(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, add, update, remove)
	return cmd
}

func createTypesCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered interpreter types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := globalFlags.client().Registered(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), reg)
			return nil
		},
	}
}

func createStartCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start SETTING_ID",
		Short: "Start an interpreter and wait until it is up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := globalFlags.client().Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func createStopCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop SETTING_ID",
		Short: "Stop an interpreter and wait until it is gone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := globalFlags.client().Stop(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func createRestartCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart SETTING_ID",
		Short: "Tear an interpreter down without waiting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := globalFlags.client().RestartSetting(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which interpreter groups of the project are running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := globalFlags.client().Statuses(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), all)
			return nil
		},
	}
}
