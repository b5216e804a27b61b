package tools

import (
	"context"
	"os/exec"
	"runtime"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fixxdigital/myob-mcp-server/internal/auth"
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
)

func (r *Registry) registerOAuthTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("oauth_authorize",
		mcp.WithDescription("Start OAuth authorization flow to authenticate with MYOB. "+
			"Opens a browser window for user to authorize. "+
			"Required before any other tools can be used."),
	), r.handle("oauth_authorize", r.oauthAuthorize))

	s.AddTool(mcp.NewTool("oauth_refresh",
		mcp.WithDescription("Manually refresh the OAuth access token. "+
			"This is usually done automatically when needed."),
	), r.handle("oauth_refresh", r.oauthRefresh))

	s.AddTool(mcp.NewTool("oauth_status",
		mcp.WithDescription("Check OAuth authentication status and token information"),
	), r.handle("oauth_status", r.oauthStatus))

	s.AddTool(mcp.NewTool("oauth_logout",
		mcp.WithDescription("Forget the stored MYOB credential. "+
			"Run oauth_authorize to connect again."),
	), r.handle("oauth_logout", r.oauthLogout))
}

func (r *Registry) oauthAuthorize(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	srv := auth.NewCallbackServer(r.callbackPort)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL, _, err := r.auth.BeginAuthorization()
	if err != nil {
		return nil, err
	}

	r.logger.Info("Opening browser for OAuth authorization",
		logging.Field{Key: "url", Value: authURL})
	if err := openBrowser(authURL); err != nil {
		r.logger.Warn("Could not open browser, visit the authorization URL manually",
			logging.Field{Key: "url", Value: authURL},
			logging.Field{Key: "error", Value: err.Error()})
	}

	callback, err := srv.Wait(ctx, r.callbackWait)
	if err != nil {
		// The abandoned state would otherwise block the next attempt
		r.auth.CancelAuthorization()
		return nil, err
	}

	cred, err := r.auth.CompleteAuthorization(ctx, callback.Code, callback.State, callback.BusinessID)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"status":  "authorized",
		"message": "OAuth authorization completed successfully.",
	}
	if cred.BusinessID != "" {
		result["company_file_id"] = cred.BusinessID
	}
	return result, nil
}

func (r *Registry) oauthRefresh(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if _, err := r.auth.ForceRefresh(ctx, ""); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":  "refreshed",
		"message": "Token refreshed successfully.",
	}, nil
}

func (r *Registry) oauthStatus(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	return r.auth.Status(), nil
}

func (r *Registry) oauthLogout(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if err := r.auth.Logout(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":  "logged_out",
		"message": "Stored credential removed. Run oauth_authorize to connect again.",
	}, nil
}

// openBrowser launches the platform browser at url.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
