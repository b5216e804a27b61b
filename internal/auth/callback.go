package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
	"github.com/fixxdigital/myob-mcp-server/internal/common/logging"
)

// DefaultCallbackWait is how long the flow waits for the user to finish
// authorizing in the browser before giving up.
const DefaultCallbackWait = 120 * time.Second

// CallbackResult carries what MYOB sent to the redirect URI. BusinessID is
// MYOB's businessId query parameter identifying the authorized business.
type CallbackResult struct {
	Code       string
	State      string
	BusinessID string
	Err        error
}

// CallbackServer is the loopback HTTP listener that receives the OAuth
// redirect. It accepts exactly one callback per flow; later hits get the
// success page but are otherwise ignored.
type CallbackServer struct {
	addr     string
	listener net.Listener
	srv      *http.Server
	results  chan CallbackResult
	once     sync.Once
}

// NewCallbackServer creates a callback listener bound to localhost on the
// given port. The port must match the redirect URI registered with MYOB.
func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{
		addr:    fmt.Sprintf("127.0.0.1:%d", port),
		results: make(chan CallbackResult, 1),
	}
}

// Start binds the listener and begins serving in the background. A port
// already in use surfaces immediately as a connection error instead of a
// silent dead flow.
func (s *CallbackServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.ConnectionError(fmt.Sprintf("cannot listen on %s", s.addr), err)
	}
	s.listener = listener

	router := mux.NewRouter()
	router.HandleFunc("/callback", s.handleCallback).Methods(http.MethodGet)

	s.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Warn("Callback server stopped unexpectedly",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}()

	logging.Debug("Callback server listening",
		logging.Field{Key: "addr", Value: listener.Addr().String()})

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *CallbackServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Wait blocks until the callback arrives, the timeout elapses, or ctx is
// cancelled. A non-positive timeout uses DefaultCallbackWait.
func (s *CallbackServer) Wait(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	if timeout <= 0 {
		timeout = DefaultCallbackWait
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-s.results:
		if res.Err != nil {
			return nil, res.Err
		}
		return &res, nil
	case <-timer.C:
		return nil, errors.TimeoutError("waiting for OAuth callback")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops the listener. Safe to call after a failed Start.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = errCode
		}
		s.deliver(CallbackResult{Err: errors.AuthError(fmt.Sprintf("authorization was denied (%s)", desc))})
		renderPage(w, http.StatusBadRequest, callbackFailurePage)
		return
	}

	code := q.Get("code")
	if code == "" {
		s.deliver(CallbackResult{Err: errors.AuthError("callback did not include an authorization code")})
		renderPage(w, http.StatusBadRequest, callbackFailurePage)
		return
	}

	s.deliver(CallbackResult{
		Code:       code,
		State:      q.Get("state"),
		BusinessID: q.Get("businessId"),
	})
	renderPage(w, http.StatusOK, callbackSuccessPage)
}

// deliver hands the first result to the waiter; duplicates are dropped.
func (s *CallbackServer) deliver(res CallbackResult) {
	s.once.Do(func() {
		s.results <- res
	})
}

func renderPage(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

const callbackSuccessPage = `<!DOCTYPE html>
<html>
<head><title>MYOB Connected</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Connected to MYOB</h1>
<p>Authorization is complete. You can close this window and return to your assistant.</p>
</body>
</html>`

const callbackFailurePage = `<!DOCTYPE html>
<html>
<head><title>MYOB Authorization Failed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Authorization failed</h1>
<p>The authorization did not complete. Close this window and try again.</p>
</body>
</html>`
