package cli

import (
	"sync"

	"parley/internal/config"
	"parley/internal/storage"
	"parley/pkg/logger"

	"github.com/rs/zerolog"
)

// CLIContext carries the shared state every subcommand needs.
type CLIContext struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *zerolog.Logger
	storageOnce sync.Once
	storage     *storage.DB
	storagePath string
	StoragePath string // Exported for serve command
	Verbose     bool
	Quiet       bool
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, storagePath string, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:      cfg,
		ConfigPath:  configPath,
		Logger:      log,
		storagePath: storagePath,
		StoragePath: storagePath,
		Verbose:     verbose,
		Quiet:       quiet,
	}
}

// GetStorage opens the storage connection lazily.
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	var err error
	c.storageOnce.Do(func() {
		c.storage, err = storage.Open(c.storagePath)
	})
	return c.storage, err
}

// Close releases resources held by the context.
func (c *CLIContext) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}

// Log returns the context logger, falling back to the global one.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	log := logger.Get()
	return log
}
