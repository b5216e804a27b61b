package app

import (
	"runtime"

	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
	"github.com/fixxdigital/myob-mcp-server/internal/config"
)

// Run is the main entry point for the application
func Run() error {
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Initialize logging; everything goes to stderr because stdout carries
	// the MCP message stream
	logging.InitGlobalLogger()
	defer logging.MustSync()

	// Load and validate configuration (.env is read inside Load)
	cfg, err := config.Load()
	if err != nil {
		logging.Error("Failed to load configuration", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	logging.Info("Starting MYOB AccountRight MCP server",
		logging.Field{Key: "version", Value: Version},
		logging.Field{Key: "callback_port", Value: cfg.CallbackPort},
	)
	// Config.String masks the secret fields
	logging.Debug("Effective configuration", logging.Field{Key: "config", Value: cfg})

	// Initialize application
	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	// Serve blocks until stdin closes or SIGINT/SIGTERM arrives
	if err := app.Serve(); err != nil {
		logging.Error("Server exited with error", err)
		return err
	}

	logging.Info("Server exited")
	return nil
}
