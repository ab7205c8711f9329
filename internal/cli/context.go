package cli

import (
	"errors"

	"tgrelay/internal/config"
	"tgrelay/pkg/logger"

	"github.com/rs/zerolog"
)

var errNoContext = errors.New("CLI context not initialized")

// CLIContext CLI 上下文
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool
}

// NewCLIContext 创建 CLI 上下文
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// Log 获取 Logger
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
