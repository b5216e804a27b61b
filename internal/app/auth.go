package app

import (
	"net/http"

	"github.com/fixxdigital/myob-mcp-server/internal/auth"
	"github.com/fixxdigital/myob-mcp-server/internal/crypto"
)

func (app *App) initializeEncryption() error {
	if app.Config.TokenPassphrase == "" {
		app.Logger.Info("Credential encryption disabled (no passphrase provided)")
		return nil
	}

	encryptor, err := crypto.NewTokenEncryptor(app.Config.TokenPassphrase)
	if err != nil {
		return err
	}

	app.Encryptor = encryptor
	app.Logger.Info("Credential encryption enabled")
	return nil
}

func (app *App) initializeAuth() error {
	manager, err := auth.NewManager(auth.Options{
		ClientID:     app.Config.ClientID,
		ClientSecret: app.Config.ClientSecret,
		RedirectURI:  app.Config.RedirectURI(),
		Scopes:       app.Config.Scopes,
		Store:        app.Store,
		HTTPClient:   &http.Client{Timeout: app.Config.HTTPTimeout},
	})
	if err != nil {
		return err
	}

	app.Auth = manager
	return nil
}
