package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"famcal/internal/config"
	"famcal/internal/log"
)

// ErrNotAuthorized reports that no usable Google token exists. The web
// layer maps it to a redirect into the setup flow instead of a fetch error.
var ErrNotAuthorized = errors.New("google calendar: not authorized")

const calendarReadonlyScope = "https://www.googleapis.com/auth/calendar.readonly"

// OAuthManager owns the OAuth2 flow and the file-backed token. The token
// file lives under the data dir with 0600 permissions and is rewritten
// whenever a refresh produces a new access token.
type OAuthManager struct {
	conf      *oauth2.Config
	tokenPath string

	mu sync.Mutex
}

// NewOAuthManager builds the manager from the google config block.
func NewOAuthManager(cfg config.GoogleConfig) (*OAuthManager, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURI == "" {
		return nil, errors.New("gcal: client_id, client_secret and redirect_uri are required")
	}
	if cfg.TokenPath == "" {
		return nil, errors.New("gcal: token_path is required")
	}
	return &OAuthManager{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{calendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
	}, nil
}

// AuthURL returns the consent URL that starts the setup flow. Offline
// access with forced consent gets a refresh token on every authorization.
func (m *OAuthManager) AuthURL(state string) string {
	return m.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades the authorization code for tokens and persists them.
func (m *OAuthManager) Exchange(ctx context.Context, code string) error {
	tok, err := m.conf.Exchange(ctx, code)
	if err != nil {
		return err
	}
	if err := m.saveToken(tok); err != nil {
		return err
	}
	log.Info("google authorization stored", "path", m.tokenPath)
	return nil
}

// Token loads the stored token, refreshing it if expired. Returns
// ErrNotAuthorized when no token exists or the refresh is rejected.
func (m *OAuthManager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.loadToken()
	if err != nil {
		return nil, ErrNotAuthorized
	}

	fresh, err := m.conf.TokenSource(ctx, tok).Token()
	if err != nil {
		log.Error("google token refresh failed", err)
		return nil, ErrNotAuthorized
	}

	if fresh.AccessToken != tok.AccessToken {
		if err := m.writeToken(fresh); err != nil {
			// The refreshed token still works for this request.
			log.Error("failed to persist refreshed token", err)
		}
	}

	return fresh, nil
}

// Client returns an authenticated HTTP client, or ErrNotAuthorized.
func (m *OAuthManager) Client(ctx context.Context) (*http.Client, error) {
	tok, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	return m.conf.Client(ctx, tok), nil
}

// IsAuthenticated reports whether a usable token exists.
func (m *OAuthManager) IsAuthenticated(ctx context.Context) bool {
	_, err := m.Token(ctx)
	return err == nil
}

// Reset deletes the stored token, forcing a new setup flow.
func (m *OAuthManager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.tokenPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	log.Info("google authorization reset")
	return nil
}

func (m *OAuthManager) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(m.tokenPath)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("empty token")
	}
	return &tok, nil
}

func (m *OAuthManager) saveToken(tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeToken(tok)
}

func (m *OAuthManager) writeToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(m.tokenPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.tokenPath, data, 0o600)
}
