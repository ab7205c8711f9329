// Package cli implements the tgrelay command line.
package cli

import (
	"context"

	"tgrelay/internal/config"
	"tgrelay/pkg/logger"

	"github.com/spf13/cobra"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

var globalFlags GlobalFlags

// contextKey CLI 上下文键
type contextKey struct{}

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tgrelay",
		Short: "tgrelay - anonymous Telegram relay bot",
		Long: `tgrelay forwards messages and requests from Telegram users to a single
administrator and relays the administrator's replies back without revealing
either side's account.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 跳过 version 和 help 命令的初始化
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			config.LoadDotEnv()

			// 确定配置路径
			configPath := globalFlags.ConfigPath
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// 初始化 Logger
			logLevel := cfg.Log.Level
			if globalFlags.Verbose {
				logLevel = "debug"
			}
			if globalFlags.Quiet {
				logLevel = "error"
			}

			logFile, err := config.ExpandPath(cfg.Log.File)
			if err != nil {
				return err
			}
			if !cfg.Log.Enabled {
				logLevel, logFile = "disabled", ""
			}
			if err := logger.Init(logger.LogConfig{
				Level:  logLevel,
				Format: cfg.Log.Format,
				File:   logFile,
			}); err != nil {
				return err
			}

			cliCtx := NewCLIContext(cfg, configPath, logger.Get(), globalFlags.Verbose, globalFlags.Quiet)
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if GetCLIContext(cmd) != nil {
				return logger.Close()
			}
			return nil
		},
	}

	// 添加全局标志
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "config file path (default ~/.tgrelay/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "quiet mode")

	// 添加子命令
	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewBansCmd())

	return rootCmd
}

// GetCLIContext 从命令上下文获取 CLI 上下文
func GetCLIContext(cmd *cobra.Command) *CLIContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, ok := ctx.Value(contextKey{}).(*CLIContext)
	if !ok {
		return nil
	}
	return cliCtx
}
