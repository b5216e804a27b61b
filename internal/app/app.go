// Package app wires the server together: configuration, logging, credential
// storage, the authenticated AccountRight client, and the MCP tool registry.
package app

import (
	"github.com/fixxdigital/myob-mcp-server/internal/auth"
	"github.com/fixxdigital/myob-mcp-server/internal/cache"
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
	"github.com/fixxdigital/myob-mcp-server/internal/config"
	"github.com/fixxdigital/myob-mcp-server/internal/crypto"
	"github.com/fixxdigital/myob-mcp-server/internal/myob"
	"github.com/fixxdigital/myob-mcp-server/internal/redis"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Store       auth.TokenStore
	Auth        *auth.Manager
	Client      *myob.Client
	Cache       *cache.ResponseCache
	RedisClient *redis.Client
	Encryptor   *crypto.TokenEncryptor
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	// Initialize components in order of dependency
	if err := app.initializeEncryption(); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		// Redis is optional; the file store still works
		app.Logger.Warn("Redis initialization failed, falling back to file storage",
			logging.Field{Key: "error", Value: err.Error()})
	}

	app.initializeTokenStore()

	if err := app.initializeAuth(); err != nil {
		return nil, err
	}

	if err := app.initializeClient(); err != nil {
		return nil, err
	}

	return app, nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
