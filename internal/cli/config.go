package cli

import (
	"fmt"
	"os"

	"tgrelay/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd 创建 config 命令组
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "Write a configuration template or print the effective configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			path := cliCtx.ConfigPath

			// 检查是否已存在
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if err := config.SaveTo(cfg, path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Set telegram.token and admin_id before running 'tgrelay serve'.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}

			cfg := cliCtx.Config
			if !showAll {
				cfg = cfg.Redacted()
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&showAll, "all", false, "show sensitive values")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errNoContext
			}
			fmt.Fprintln(cmd.OutOrStdout(), cliCtx.ConfigPath)
			return nil
		},
	}
}
