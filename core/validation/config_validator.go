package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CheckResult represents the outcome of a single configuration check.
type CheckResult struct {
	Valid   bool
	Message string
	Error   error
}

// ConfigChecker validates configuration values read from the environment.
// It is deliberately independent of core.LoadConfig so the suite can report
// each problem individually instead of stopping at the first one.
type ConfigChecker struct {
	lookupEnv func(string) (string, bool)
}

// NewConfigChecker creates a ConfigChecker backed by the process environment.
func NewConfigChecker() *ConfigChecker {
	return &ConfigChecker{lookupEnv: os.LookupEnv}
}

// WithLookup overrides the environment lookup function. Used in tests.
func (c *ConfigChecker) WithLookup(fn func(string) (string, bool)) *ConfigChecker {
	c.lookupEnv = fn
	return c
}

// CheckAPIKey verifies that OPENAI_API_KEY is set and non-empty.
func (c *ConfigChecker) CheckAPIKey() CheckResult {
	key, ok := c.lookupEnv("OPENAI_API_KEY")
	if !ok || strings.TrimSpace(key) == "" {
		return CheckResult{
			Valid:   false,
			Message: "OPENAI_API_KEY is not set",
			Error:   fmt.Errorf("set OPENAI_API_KEY in the environment or .env file"),
		}
	}
	return CheckResult{Valid: true, Message: fmt.Sprintf("key present (%d chars)", len(key))}
}

// CheckLLMURL verifies that BASE_LLM_URL, if set, parses as an http(s) URL.
// An unset value is valid: the client falls back to the default endpoint.
func (c *ConfigChecker) CheckLLMURL() CheckResult {
	raw, ok := c.lookupEnv("BASE_LLM_URL")
	if !ok || strings.TrimSpace(raw) == "" {
		return CheckResult{Valid: true, Message: "using default endpoint"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return CheckResult{Valid: false, Message: "invalid URL", Error: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return CheckResult{
			Valid:   false,
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
			Error:   fmt.Errorf("BASE_LLM_URL must start with http:// or https://"),
		}
	}
	return CheckResult{Valid: true, Message: u.Host}
}

// CheckUploadsDir verifies the uploads directory exists (or can be created)
// and is writable.
func (c *ConfigChecker) CheckUploadsDir() CheckResult {
	dir, ok := c.lookupEnv("UPLOADS_DIR")
	if !ok || dir == "" {
		dir = "uploads"
	}
	return checkWritableDir(dir)
}

// CheckDatabaseDir verifies the directory holding the database file is writable.
func (c *ConfigChecker) CheckDatabaseDir() CheckResult {
	path, ok := c.lookupEnv("DATABASE_PATH")
	if !ok || path == "" {
		path = "smartnotes.db"
	}
	dir := filepath.Dir(path)
	return checkWritableDir(dir)
}

// checkWritableDir ensures dir exists and permits file creation.
func checkWritableDir(dir string) CheckResult {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{Valid: false, Message: "cannot create directory", Error: err}
	}
	probe := filepath.Join(dir, ".write_probe")
	f, err := os.Create(probe)
	if err != nil {
		return CheckResult{Valid: false, Message: "directory not writable", Error: err}
	}
	f.Close()
	os.Remove(probe)
	return CheckResult{Valid: true, Message: dir}
}

// ConnectivityResult represents the outcome of a network reachability check.
type ConnectivityResult struct {
	Reachable bool
	Message   string
	Latency   time.Duration
	Error     error
}

// ConnectivityChecker probes the configured LLM endpoint.
type ConnectivityChecker struct {
	client  *http.Client
	timeout time.Duration
}

// NewConnectivityChecker creates a ConnectivityChecker with a 5s timeout.
func NewConnectivityChecker() *ConnectivityChecker {
	c := &ConnectivityChecker{timeout: 5 * time.Second}
	c.client = &http.Client{Timeout: c.timeout}
	return c
}

// WithTimeout sets the request timeout.
func (c *ConnectivityChecker) WithTimeout(d time.Duration) *ConnectivityChecker {
	c.timeout = d
	c.client.Timeout = d
	return c
}

// CheckLLMEndpoint issues a lightweight request against the LLM base URL.
// Any HTTP response counts as reachable: auth failures still prove the host
// is up, which is all this check asserts.
func (c *ConnectivityChecker) CheckLLMEndpoint() ConnectivityResult {
	base := os.Getenv("BASE_LLM_URL")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	probeURL := strings.TrimRight(base, "/") + "/models"

	start := time.Now()
	resp, err := c.client.Get(probeURL)
	latency := time.Since(start)
	if err != nil {
		return ConnectivityResult{
			Reachable: false,
			Message:   "endpoint unreachable",
			Latency:   latency,
			Error:     err,
		}
	}
	defer resp.Body.Close()

	return ConnectivityResult{
		Reachable: true,
		Message:   fmt.Sprintf("reachable (HTTP %d)", resp.StatusCode),
		Latency:   latency,
	}
}
