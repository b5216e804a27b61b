package app

import (
	"net/http"

	"github.com/fixxdigital/myob-mcp-server/internal/cache"
	"github.com/fixxdigital/myob-mcp-server/internal/myob"
)

func (app *App) initializeClient() error {
	app.Cache = cache.NewResponseCache()

	client, err := myob.NewClient(app.Auth, myob.Options{
		APIKey:        app.Config.ClientID,
		CompanyFileID: app.Config.CompanyFileID,
		HTTPClient:    &http.Client{Timeout: app.Config.HTTPTimeout},
		Cache:         app.Cache,
		Logger:        app.Logger,
	})
	if err != nil {
		return err
	}

	app.Client = client
	return nil
}
