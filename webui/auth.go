package webui

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"smartnotes/logging"
)

// Auth configuration defaults.
const (
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session_id"

	// bcryptCost balances hashing time against brute-force resistance.
	bcryptCost = 12

	// failedLoginDelay slows down brute force and evens out timing.
	failedLoginDelay = 1 * time.Second

	defaultMaxLoginAttempts = 5
	defaultAttemptWindow    = 1 * time.Minute
	defaultBlockDuration    = 5 * time.Minute
)

// Auth errors.
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match")
)

// HashPassword creates a bcrypt hash of the given password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a bcrypt hash in
// constant time. Internal bcrypt errors are normalized to
// ErrPasswordMismatch so a malformed hash leaks nothing.
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// Authenticator guards the web UI with a single shared password. It
// composes the bcrypt hash, the session store, and the login rate
// limiter, and exposes middleware plus login/logout handlers.
type Authenticator struct {
	passwordHash string
	sessions     *SessionStore
	limiter      *RateLimiter
	cookieMaxAge int
	log          *logging.Logger
}

// AuthConfig configures the Authenticator.
type AuthConfig struct {
	// SessionTTL is how long sessions stay valid
	SessionTTL time.Duration
	// MaxLoginAttempts before an IP is blocked
	MaxLoginAttempts int
	// AttemptWindow for counting failed attempts
	AttemptWindow time.Duration
	// BlockDuration after the attempt limit is hit
	BlockDuration time.Duration
}

// DefaultAuthConfig returns the default auth settings: 24h sessions,
// 5 attempts per minute, 5-minute block.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		SessionTTL:       24 * time.Hour,
		MaxLoginAttempts: defaultMaxLoginAttempts,
		AttemptWindow:    defaultAttemptWindow,
		BlockDuration:    defaultBlockDuration,
	}
}

// NewAuthenticator hashes the password and wires the session store and
// rate limiter.
func NewAuthenticator(password string, cfg AuthConfig, log *logging.Logger) (*Authenticator, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultAuthConfig().SessionTTL
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = defaultAttemptWindow
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = defaultBlockDuration
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	return &Authenticator{
		passwordHash: hash,
		sessions:     NewSessionStore(cfg.SessionTTL),
		limiter:      NewRateLimiter(cfg.MaxLoginAttempts, cfg.AttemptWindow, cfg.BlockDuration),
		cookieMaxAge: int(cfg.SessionTTL.Seconds()),
		log:          log.Named("auth"),
	}, nil
}

// Middleware rejects requests without a valid session. Browser page
// requests are redirected to /login; API requests get 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err == nil {
			if _, err := a.sessions.Get(cookie.Value); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		a.log.Debugw("unauthenticated request", "path", r.URL.Path, "ip", clientIP(r))
		if wantsHTML(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// LoginHandler renders the login form on GET and authenticates on POST.
func (a *Authenticator) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			a.handleLoginGET(w, r)
		case http.MethodPost:
			a.handleLoginPOST(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (a *Authenticator) handleLoginGET(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if _, err := a.sessions.Get(cookie.Value); err == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}
	renderLogin(w, r.URL.Query().Get("error"))
}

func (a *Authenticator) handleLoginPOST(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if allowed, remaining := a.limiter.Allow(ip); !allowed {
		a.log.Warnw("login rate limit exceeded", "ip", ip, "remaining", remaining)
		w.Header().Set("Retry-After", retryAfterSeconds(remaining))
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	password := r.FormValue("password")
	if password == "" {
		time.Sleep(failedLoginDelay)
		redirectWithError(w, r, "Password is required")
		return
	}

	if err := VerifyPassword(password, a.passwordHash); err != nil {
		a.limiter.RecordAttempt(ip)
		a.log.Infow("login failed", "ip", ip, "attempts", a.limiter.AttemptCount(ip))
		time.Sleep(failedLoginDelay)
		redirectWithError(w, r, "Invalid password")
		return
	}

	session, err := a.sessions.Create()
	if err != nil {
		a.log.Errorw("session creation failed", "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.limiter.Reset(ip)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   a.cookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	a.log.Infow("login succeeded", "ip", ip)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutHandler destroys the session and clears the cookie.
func (a *Authenticator) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			a.sessions.Delete(cookie.Value)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

// Sessions exposes the session store for cleanup ticker wiring.
func (a *Authenticator) Sessions() *SessionStore {
	return a.sessions
}

// Limiter exposes the rate limiter for cleanup ticker wiring.
func (a *Authenticator) Limiter() *RateLimiter {
	return a.limiter
}

func redirectWithError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/login?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// wantsHTML reports whether the request looks like a browser page load
// rather than an API call.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// clientIP extracts the client address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}
