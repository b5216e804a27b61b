package app

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/fixxdigital/myob-mcp-server/internal/tools"
)

// Name and Version identify the server during the MCP handshake.
const (
	Name    = "myob-accountright"
	Version = "1.0.0"
)

// Serve builds the MCP server with every tool registered and serves the
// stdio transport. It blocks until stdin closes or a shutdown signal
// arrives; mcp-go installs the SIGINT/SIGTERM handler itself.
func (app *App) Serve() error {
	registry, err := tools.NewRegistry(tools.Options{
		Client:       app.Client,
		Auth:         app.Auth,
		Logger:       app.Logger,
		CallbackPort: app.Config.CallbackPort,
	})
	if err != nil {
		return err
	}

	s := server.NewMCPServer(Name, Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Tools for the MYOB AccountRight API: company files, "+
			"accounts, contacts, invoices, bills, payments, banking, and attachments. "+
			"Run oauth_authorize once before using the data tools."),
	)
	registry.RegisterAll(s)

	app.Logger.Info("MCP server listening on stdio")

	return server.ServeStdio(s)
}
