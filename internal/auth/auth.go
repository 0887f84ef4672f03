// Package auth implements OAuth login against code hosts and cookie sessions.
package auth

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/gitlab"

	"github.com/oss-wishlist/wishlist/internal/logging"
	"github.com/oss-wishlist/wishlist/internal/provider"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

const (
	SessionCookie = "wishlist_session"
	StateCookie   = "wishlist_oauth_state"

	// DefaultStateTTL bounds how long a login attempt may take.
	DefaultStateTTL = 10 * time.Minute

	redirectParam = "next"
)

// Options configures a Manager.
type Options struct {
	BaseURL    string
	SessionTTL time.Duration
	StateTTL   time.Duration
	IsAdmin    func(identity string) bool // receives wishlist.User.Identity()
	Logger     *zap.Logger
	Now        func() time.Time
}

type registration struct {
	config   *oauth2.Config
	provider provider.Provider
}

// Manager runs the OAuth authorization code flow and owns the sessions it creates.
type Manager struct {
	providers  map[string]registration
	sessions   *sessionStore
	states     *stateStore
	sessionTTL time.Duration
	secure     bool
	isAdmin    func(string) bool
	logger     *zap.Logger
	now        func() time.Time
}

// NewManager returns a Manager with no providers registered.
func NewManager(opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 8 * time.Hour
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = DefaultStateTTL
	}
	isAdmin := opts.IsAdmin
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Manager{
		providers:  make(map[string]registration),
		sessions:   newSessionStore(now),
		states:     newStateStore(opts.StateTTL, now),
		sessionTTL: opts.SessionTTL,
		secure:     strings.HasPrefix(opts.BaseURL, "https://"),
		isAdmin:    isAdmin,
		logger:     logging.OrNop(opts.Logger),
		now:        now,
	}
}

// GitHubConfig returns the OAuth configuration for GitHub login.
func GitHubConfig(clientID, clientSecret, baseURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL(baseURL, provider.NameGitHub),
		Scopes:       []string{"read:user", "user:email", "read:org"},
		Endpoint:     github.Endpoint,
	}
}

// GitLabConfig returns the OAuth configuration for GitLab login.
func GitLabConfig(clientID, clientSecret, baseURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL(baseURL, provider.NameGitLab),
		Scopes:       []string{"read_user", "read_api"},
		Endpoint:     gitlab.Endpoint,
	}
}

func callbackURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/auth/" + name + "/callback"
}

// Register enables login through p.
func (m *Manager) Register(cfg *oauth2.Config, p provider.Provider) {
	m.providers[p.Name()] = registration{config: cfg, provider: p}
}

// Providers returns the registered provider names in sorted order.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider returns the registered provider with the given name.
func (m *Manager) Provider(name string) (provider.Provider, bool) {
	reg, ok := m.providers[name]
	return reg.provider, ok
}

// Login redirects to the provider's consent page. The provider name is the
// {provider} path value.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	reg, ok := m.providers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	state := m.states.New(name, sanitizeRedirect(r.URL.Query().Get(redirectParam)))
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(m.states.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, reg.config.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

// Callback completes the code exchange and starts a session.
func (m *Manager) Callback(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	reg, ok := m.providers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Error(w, "missing oauth parameters", http.StatusBadRequest)
		return
	}
	cookie, err := r.Cookie(StateCookie)
	if err != nil || cookie.Value != state {
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	entry, ok := m.states.Consume(state)
	if !ok || entry.Provider != name {
		http.Error(w, "oauth state expired", http.StatusBadRequest)
		return
	}
	clearCookie(w, StateCookie, m.secure)

	ctx := r.Context()
	token, err := reg.config.Exchange(ctx, code)
	if err != nil {
		m.logger.Warn("oauth exchange failed", zap.String("provider", name), zap.Error(err))
		http.Error(w, "failed to exchange oauth code", http.StatusBadRequest)
		return
	}
	user, err := reg.provider.User(ctx, token)
	if err != nil {
		m.logger.Warn("fetch user failed", zap.String("provider", name), zap.Error(err))
		http.Error(w, "failed to fetch user", http.StatusBadGateway)
		return
	}

	sess := m.Issue(*user, token)
	m.setSessionCookie(w, sess)
	m.logger.Info("login", zap.String("provider", name), zap.String("login", user.Login), zap.Bool("admin", sess.Admin))

	redirect := entry.Redirect
	if redirect == "" {
		redirect = "/"
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Logout ends the current session.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) {
	if id := sessionID(r); id != "" {
		if sess, ok := m.sessions.Delete(id); ok {
			m.logger.Info("logout", zap.String("login", sess.User.Login),
				zap.Duration("session_duration", m.now().Sub(sess.CreatedAt).Truncate(time.Second)))
		}
	}
	clearCookie(w, SessionCookie, m.secure)
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Issue creates a session for user without touching any response.
func (m *Manager) Issue(user wishlist.User, token *oauth2.Token) Session {
	now := m.now()
	sess := Session{
		ID:        uuid.NewString(),
		User:      user,
		Token:     token,
		Admin:     m.isAdmin(user.Identity()),
		CreatedAt: now,
		ExpiresAt: now.Add(m.sessionTTL),
	}
	m.sessions.Set(sess)
	return sess
}

func (m *Manager) setSessionCookie(w http.ResponseWriter, sess Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(m.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Lookup returns the live session carried by r, from the session cookie or
// an "Authorization: Bearer <session id>" header.
func (m *Manager) Lookup(r *http.Request) (*Session, bool) {
	id := sessionID(r)
	if id == "" {
		return nil, false
	}
	sess, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return &sess, true
}

// WithSession stores the request's session, if any, in its context.
func (m *Manager) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := m.Lookup(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession rejects requests without a live session.
func (m *Manager) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := m.Lookup(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

type sessionKey struct{}

// FromContext returns the session stored by WithSession or RequireSession.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}

// NewContext returns ctx carrying sess.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

func sessionID(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if id, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(id)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func clearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sanitizeRedirect keeps only same-origin absolute paths.
func sanitizeRedirect(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") && !strings.HasPrefix(raw, "/\\") {
		if u, err := url.Parse(raw); err == nil && u.Host == "" {
			return raw
		}
	}
	return ""
}
