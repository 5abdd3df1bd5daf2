package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const callbackPath = "/callback"

type callbackResult struct {
	code string
	err  error
}

// callbackServer receives the authorization redirect on a loopback address.
type callbackServer struct {
	ln      net.Listener
	srv     *http.Server
	state   string
	results chan callbackResult
	logger  *slog.Logger
}

func listenCallback(addr, state string, logger *slog.Logger) (*callbackServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	cb := &callbackServer{
		ln:      ln,
		state:   state,
		results: make(chan callbackResult, 1),
		logger:  logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, cb.handle)
	cb.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := cb.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("oauth callback server stopped", "error", err)
		}
	}()
	return cb, nil
}

// RedirectURL is the redirect URI to register with the authorization server.
func (cb *callbackServer) RedirectURL() string {
	return "http://" + cb.ln.Addr().String() + callbackPath
}

func (cb *callbackServer) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var res callbackResult
	switch {
	case q.Get("state") != cb.state:
		res.err = errors.New("state mismatch")
	case q.Get("error") != "":
		res.err = fmt.Errorf("authorization denied: %s %s", q.Get("error"), q.Get("error_description"))
	case q.Get("code") == "":
		res.err = errors.New("callback without code")
	default:
		res.code = q.Get("code")
	}

	if res.err != nil {
		http.Error(w, "Authorization failed: "+res.err.Error(), http.StatusBadRequest)
	} else {
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
	}

	select {
	case cb.results <- res:
	default:
		cb.logger.Debug("duplicate oauth callback ignored")
	}
}

// Wait blocks until the redirect arrives or ctx is done.
func (cb *callbackServer) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-cb.results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (cb *callbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return cb.srv.Shutdown(ctx)
}
