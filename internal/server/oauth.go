package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlabel/internal/services"
	"github.com/desertthunder/spotlabel/internal/shared"
)

// Exchanger trades an authorization code for a token pair.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (services.TokenSet, error)
}

// OAuthResult is the outcome of one authorization callback.
type OAuthResult struct {
	Tokens services.TokenSet
	err    error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the authorization code callback of a login.
//
// It validates the state parameter, exchanges the code and sends the result through a channel.
// Only the first callback is processed.
type OAuthHandler struct {
	exchanger  Exchanger
	state      string
	logger     *log.Logger
	resultChan chan OAuthResult
	once       sync.Once

	mu          sync.Mutex
	callbackHit bool
}

// NewOAuthHandler creates a handler expecting the given state token.
func NewOAuthHandler(exchanger Exchanger, state string, logger *log.Logger) *OAuthHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &OAuthHandler{
		exchanger:  exchanger,
		state:      state,
		logger:     logger,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	tokens, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed", "error", err)
		h.Send(OAuthResult{err: err})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.Send(OAuthResult{Tokens: tokens})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

// Send delivers a result. Only the first call has an effect.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns a channel that receives exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>spotlabel</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Logged in</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
