package app

import (
	"github.com/fixxdigital/myob-mcp-server/internal/auth"
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
)

// initializeTokenStore picks where the OAuth credential lives: Redis when
// connected, otherwise an owner-only file, encrypted when a passphrase is
// configured.
func (app *App) initializeTokenStore() {
	if app.RedisClient != nil {
		app.Store = auth.NewRedisTokenStore(app.RedisClient)
		app.Logger.Info("Credential storage: Redis",
			logging.Field{Key: "address", Value: app.Config.RedisAddr})
		return
	}

	app.Store = auth.NewFileTokenStore(app.Config.TokenPath, app.Encryptor)
	app.Logger.Info("Credential storage: file",
		logging.Field{Key: "path", Value: app.Config.TokenPath},
		logging.Field{Key: "encrypted", Value: app.Encryptor != nil})
}
