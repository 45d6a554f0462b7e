// Package config provides centralized configuration management for webact.
// It loads configuration from CLI flags and environment variables, validates required fields,
// and provides sensible defaults.
//
// CLI flags name the page and the interactions to run, and control which services are mocked
// (--no-email, --no-s3). Environment variables select the browser driver and provide secrets.
package config

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Browser drivers.
const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"
	DriverSelenium   = "selenium"
)

const (
	defaultTigrisRegion = "auto"
	defaultTimeout      = 30 * time.Second
	defaultSettleDelay  = time.Second
)

// Flags are the command-line arguments of a run.
type Flags struct {
	URL    string
	Title  string
	Table  string
	Text   string
	Click  string
	Expect string

	NoEmail bool
	NoS3    bool

	// History lists the runs stored in the ledger instead of opening a browser.
	History bool
	// Show prints the entries of one stored run and verifies its evidence.
	Show string
}

// Config holds all run configuration.
type Config struct {
	Flags

	// Browser
	Driver          string
	Browser         string
	Headless        bool
	Timeout         time.Duration
	PageLoadTimeout time.Duration
	SettleDelay     time.Duration
	SeleniumURL     string

	// Output
	ReportDir  string
	LedgerPath string
	LedgerKey  string // 64 hex characters (32 bytes), empty for an unencrypted ledger

	// Resend Email
	ResendAPIKey    string
	ResendFromEmail string
	NotifyTo        []string
	MockOutboxDir   string // WEBACT_MOCK_OUTBOX_DIR, used with -no-email

	// S3/Tigris evidence storage (uses AWS_ env vars, set automatically by `fly storage create`)
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL (custom, not set by Tigris)
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses the command line. Call before LoadConfig.
func ParseFlags(args []string, output io.Writer) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("webact", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&f.URL, "url", "", "Page to open (required)")
	fs.StringVar(&f.Title, "title", "", "Report title (default: the URL)")
	fs.StringVar(&f.Table, "table", "", "CSS selector of a table whose cell text is read")
	fs.StringVar(&f.Text, "text", "", "CSS selector of an element whose text is read")
	fs.StringVar(&f.Click, "click", "", "CSS selector of an element to click")
	fs.StringVar(&f.Expect, "expect", "", "Text the -text element must contain")
	fs.BoolVar(&f.NoEmail, "no-email", false, "Use mock notifier (logs instead of sending e-mail)")
	fs.BoolVar(&f.NoS3, "no-s3", false, "Keep evidence inline instead of uploading it to S3")
	fs.BoolVar(&f.History, "history", false, "List runs stored in the ledger and exit")
	fs.StringVar(&f.Show, "show", "", "Print the ledger entries of a run ID and verify its evidence, then exit")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if f.Title == "" {
		f.Title = f.URL
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and the parsed flags.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{Flags: f}

	// Browser
	cfg.Driver = strings.ToLower(getEnvOrDefault("WEBACT_DRIVER", DriverPlaywright))
	cfg.Browser = strings.ToLower(getEnvOrDefault("WEBACT_BROWSER", defaultBrowser(cfg.Driver)))
	cfg.Headless = parseBoolOrDefault("WEBACT_HEADLESS", true)
	cfg.Timeout = parseDurationOrDefault("WEBACT_TIMEOUT", defaultTimeout)
	cfg.PageLoadTimeout = parseDurationOrDefault("WEBACT_PAGE_LOAD_TIMEOUT", defaultTimeout)
	cfg.SettleDelay = parseDurationOrDefault("WEBACT_SETTLE_DELAY", defaultSettleDelay)
	cfg.SeleniumURL = getEnvOrDefault("WEBACT_SELENIUM_URL", "http://localhost:4444/wd/hub")

	// Output
	cfg.ReportDir = getEnvOrDefault("WEBACT_REPORT_DIR", "./reports")
	cfg.LedgerPath = getEnvOrDefault("WEBACT_LEDGER_PATH", "")
	cfg.LedgerKey = getEnvOrDefault("WEBACT_LEDGER_KEY", "")

	// Resend Email
	cfg.ResendAPIKey = getEnvOrDefault("RESEND_API_KEY", "")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "webact@example.com")
	cfg.NotifyTo = splitList(os.Getenv("WEBACT_NOTIFY_TO"))
	cfg.MockOutboxDir = getEnvOrDefault("WEBACT_MOCK_OUTBOX_DIR", "")

	// S3/Tigris Storage
	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultTigrisRegion)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "")
	cfg.AWSPublicURL = getEnvOrDefault("S3_PUBLIC_URL", "")
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// Optional services (evidence upload, notification, ledger) are only checked when enabled.
func (c *Config) Validate() error {
	var errs []string

	switch {
	case c.Inspecting():
		if !c.LedgerEnabled() {
			errs = append(errs, "WEBACT_LEDGER_PATH is required for -history and -show")
		}
	case strings.TrimSpace(c.URL) == "":
		errs = append(errs, "-url is required")
	}
	if c.Expect != "" && c.Text == "" {
		errs = append(errs, "-expect needs -text to name the element to compare")
	}

	switch c.Driver {
	case DriverPlaywright:
		if !oneOf(c.Browser, "chromium", "chrome", "firefox", "webkit", "safari") {
			errs = append(errs, fmt.Sprintf("WEBACT_BROWSER %q is not supported by playwright (chromium, firefox, webkit)", c.Browser))
		}
	case DriverChromedp:
		if !oneOf(c.Browser, "chrome", "chromium") {
			errs = append(errs, fmt.Sprintf("WEBACT_BROWSER %q is not supported by chromedp (chrome)", c.Browser))
		}
	case DriverSelenium:
		if !oneOf(c.Browser, "chrome", "firefox") {
			errs = append(errs, fmt.Sprintf("WEBACT_BROWSER %q is not supported by selenium (chrome, firefox)", c.Browser))
		}
		if c.SeleniumURL == "" {
			errs = append(errs, "WEBACT_SELENIUM_URL is required for the selenium driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("WEBACT_DRIVER %q must be one of playwright, chromedp, selenium", c.Driver))
	}

	if c.Timeout <= 0 {
		errs = append(errs, "WEBACT_TIMEOUT must be positive")
	}
	if c.PageLoadTimeout <= 0 {
		errs = append(errs, "WEBACT_PAGE_LOAD_TIMEOUT must be positive")
	}
	if c.SettleDelay < 0 {
		errs = append(errs, "WEBACT_SETTLE_DELAY must not be negative")
	}

	if c.LedgerKey != "" {
		if c.LedgerPath == "" {
			errs = append(errs, "WEBACT_LEDGER_KEY is set but WEBACT_LEDGER_PATH is empty")
		}
		if key, err := hex.DecodeString(c.LedgerKey); err != nil || len(key) != 32 {
			errs = append(errs, "WEBACT_LEDGER_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}

	// Email: require Resend settings when someone is to be notified, unless --no-email
	if c.NotifyEnabled() && !c.NoEmail {
		if c.ResendAPIKey == "" {
			errs = append(errs, "RESEND_API_KEY is required when WEBACT_NOTIFY_TO is set (or use --no-email)")
		}
		if c.ResendFromEmail == "" {
			errs = append(errs, "RESEND_FROM_EMAIL is required when WEBACT_NOTIFY_TO is set")
		}
	}

	// S3/Tigris: credentials come in pairs
	if c.EvidenceEnabled() {
		if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
		if c.AWSPublicURL == "" {
			errs = append(errs, "S3_PUBLIC_URL is required when AWS_ENDPOINT_URL_S3 is not set (or use --no-s3)")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// EvidenceEnabled reports whether failure screenshots are uploaded to S3.
func (c *Config) EvidenceEnabled() bool {
	return !c.NoS3 && c.AWSBucketName != ""
}

// Inspecting reports whether the run reads the ledger instead of driving a browser.
func (c *Config) Inspecting() bool {
	return c.History || c.Show != ""
}

// NotifyEnabled reports whether failed runs are announced by e-mail.
func (c *Config) NotifyEnabled() bool {
	return len(c.NotifyTo) > 0
}

// LedgerEnabled reports whether entries are persisted to the ledger database.
func (c *Config) LedgerEnabled() bool {
	return c.LedgerPath != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "webact run starting...")
	fmt.Fprintf(w, "  Page:     %s\n", c.URL)
	fmt.Fprintf(w, "  Driver:   %s (%s, headless=%t)\n", c.Driver, c.Browser, c.Headless)
	fmt.Fprintf(w, "  Timeouts: step %s, page load %s\n", c.Timeout, c.PageLoadTimeout)
	fmt.Fprintf(w, "  Report:   %s\n", c.ReportDir)

	switch {
	case c.LedgerEnabled() && c.LedgerKey != "":
		fmt.Fprintf(w, "  Ledger:   %s (encrypted)\n", c.LedgerPath)
	case c.LedgerEnabled():
		fmt.Fprintf(w, "  Ledger:   %s\n", c.LedgerPath)
	default:
		fmt.Fprintln(w, "  Ledger:   off")
	}

	switch {
	case c.EvidenceEnabled():
		fmt.Fprintf(w, "  Evidence: S3 bucket %s (%s)\n", c.AWSBucketName, c.AWSPublicURL)
	case c.NoS3:
		fmt.Fprintln(w, "  Evidence: inline (--no-s3)")
	default:
		fmt.Fprintln(w, "  Evidence: inline")
	}

	switch {
	case !c.NotifyEnabled():
		fmt.Fprintln(w, "  Notify:   off")
	case c.NoEmail:
		fmt.Fprintln(w, "  Notify:   Mock (--no-email)")
	default:
		fmt.Fprintf(w, "  Notify:   Resend (from: %s, to: %s)\n", c.ResendFromEmail, strings.Join(c.NotifyTo, ", "))
	}
	fmt.Fprintln(w, "")
}

func defaultBrowser(driver string) string {
	if driver == DriverPlaywright {
		return "chromium"
	}
	return "chrome"
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
