package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHost         = "127.0.0.1"
	defaultPort         = 8000
	defaultMaxBodyBytes = 1 << 20
	defaultRateLimit    = 30
	defaultRateWindow   = time.Minute
)

// ErrInboxDisabled is returned by ValidateInbox when monitoring is off.
var ErrInboxDisabled = errors.New("inbox: monitoring is not enabled in config")

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Lexicon LexiconConfig `yaml:"lexicon,omitempty"`
	Inbox   InboxConfig   `yaml:"inbox,omitempty"`
	Reply   ReplyConfig   `yaml:"reply,omitempty"`
	Ledger  LedgerConfig  `yaml:"ledger,omitempty"`
}

type ServerConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	RateLimit     *int          `yaml:"rate_limit,omitempty"` // Requests per window per client IP; 0 disables
	RateWindow    time.Duration `yaml:"rate_window"`
	TrustProxy    bool          `yaml:"trust_proxy"`          // Take the client IP from X-Forwarded-For/X-Real-IP
	CSRF          *bool         `yaml:"csrf,omitempty"`       // Defaults to on
	VerboseErrors bool          `yaml:"verbose_errors"`       // Include error details in 5xx responses
}

// RequestsPerWindow is the per-client request budget. Zero means unlimited.
func (s ServerConfig) RequestsPerWindow() int {
	if s.RateLimit == nil {
		return defaultRateLimit
	}
	return *s.RateLimit
}

// CSRFEnabled reports whether the web UI enforces CSRF tokens.
func (s ServerConfig) CSRFEnabled() bool { return s.CSRF == nil || *s.CSRF }

// Addr is the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// LexiconConfig points at an optional YAML file replacing the built-in lexicon.
type LexiconConfig struct {
	Path string `yaml:"path,omitempty"`
}

// InboxConfig holds IMAP settings for triaging a mailbox
type InboxConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Provider           string `yaml:"provider"`            // "gmail", "outlook", "imap"
	Server             string `yaml:"server"`              // e.g., "imap.gmail.com"
	Port               int    `yaml:"port"`                // e.g., 993
	Email              string `yaml:"email"`               // Mailbox login
	Password           string `yaml:"password"`            // App password (not main password)
	Folder             string `yaml:"folder"`              // Folder to triage (default: "INBOX")
	Days               int    `yaml:"days"`                // Look-back window for scans
	AutoSort           bool   `yaml:"auto_sort"`           // Move unproductive mail out of Folder
	UnproductiveFolder string `yaml:"unproductive_folder"` // Destination for auto_sort
}

// ReplyConfig controls delivery of suggested replies.
type ReplyConfig struct {
	Enabled        bool       `yaml:"enabled"`
	Provider       string     `yaml:"provider"` // smtp, sendgrid, resend
	From           string     `yaml:"from"`
	FromName       string     `yaml:"from_name,omitempty"`
	Signature      string     `yaml:"signature,omitempty"`
	Template       string     `yaml:"template,omitempty"` // quoted or plain
	SMTP           SMTPConfig `yaml:"smtp,omitempty"`
	SendGridAPIKey string     `yaml:"sendgrid_api_key,omitempty"`
	ResendAPIKey   string     `yaml:"resend_api_key,omitempty"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

type LedgerConfig struct {
	Path string `yaml:"path,omitempty"`
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailflow"
	}
	return filepath.Join(home, ".mailflow")
}

func DefaultConfigPath() string { return filepath.Join(dataDir(), "config.yaml") }

func DefaultLedgerPath() string { return filepath.Join(dataDir(), "ledger.db") }

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads .env (if present), the YAML file at path (if present) and the
// environment, in that order of increasing precedence. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := checkFilePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MAILFLOW_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("MAILFLOW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAILFLOW_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DEBUG_VERBOSE"); v != "" {
		c.Server.VerboseErrors = parseBool(v)
	}
	if v := os.Getenv("MAILFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MAILFLOW_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("MAILFLOW_LEXICON"); v != "" {
		c.Lexicon.Path = v
	}
	if v := os.Getenv("MAILFLOW_IMAP_PASSWORD"); v != "" {
		c.Inbox.Password = v
	}
	if v := os.Getenv("MAILFLOW_SMTP_PASSWORD"); v != "" {
		c.Reply.SMTP.Password = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		c.Reply.SendGridAPIKey = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		c.Reply.ResendAPIKey = v
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.Server.RateLimit == nil {
		limit := defaultRateLimit
		c.Server.RateLimit = &limit
	}
	if c.Server.RateWindow == 0 {
		c.Server.RateWindow = defaultRateWindow
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	// Set inbox defaults
	if c.Inbox.Folder == "" {
		c.Inbox.Folder = "INBOX"
	}
	if c.Inbox.Days == 0 {
		c.Inbox.Days = 7
	}
	if c.Inbox.UnproductiveFolder == "" {
		c.Inbox.UnproductiveFolder = "Improdutivo"
	}
	if c.Inbox.Provider == "gmail" && c.Inbox.Server == "" {
		c.Inbox.Server = "imap.gmail.com"
		c.Inbox.Port = 993
	}
	if c.Inbox.Provider == "outlook" && c.Inbox.Server == "" {
		c.Inbox.Server = "outlook.office365.com"
		c.Inbox.Port = 993
	}

	if c.Reply.Provider == "" {
		c.Reply.Provider = "smtp"
	}
	if c.Reply.Template == "" {
		c.Reply.Template = "quoted"
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = DefaultLedgerPath()
	}
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server: max_body_bytes must not be negative")
	}
	if c.Server.RequestsPerWindow() < 0 {
		return fmt.Errorf("server: rate_limit must not be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log: unknown format %q (console or json)", c.Log.Format)
	}
	return nil
}

// ValidateInbox validates inbox configuration (only called when inbox monitoring is used)
func (c *Config) ValidateInbox() error {
	if !c.Inbox.Enabled {
		return ErrInboxDisabled
	}
	if c.Inbox.Email == "" {
		return fmt.Errorf("inbox: email address is required")
	}
	if c.Inbox.Password == "" {
		return fmt.Errorf("inbox: password (app password) is required")
	}
	if c.Inbox.Server == "" {
		return fmt.Errorf("inbox: IMAP server is required")
	}
	if c.Inbox.Port == 0 {
		return fmt.Errorf("inbox: IMAP port is required")
	}
	return nil
}

// ValidateReply validates reply delivery settings (only called when replies are sent)
func (c *Config) ValidateReply() error {
	if !c.Reply.Enabled {
		return fmt.Errorf("reply: delivery is not enabled in config")
	}
	if c.Reply.From == "" {
		return fmt.Errorf("reply: from address is required")
	}
	switch c.Reply.Template {
	case "", "quoted", "plain":
	default:
		return fmt.Errorf("reply: unknown template %q (quoted or plain)", c.Reply.Template)
	}
	switch c.Reply.Provider {
	case "smtp":
		if c.Reply.SMTP.Host == "" {
			return fmt.Errorf("reply.smtp: host is required")
		}
		if c.Reply.SMTP.Port == 0 {
			return fmt.Errorf("reply.smtp: port is required")
		}
	case "sendgrid":
		if c.Reply.SendGridAPIKey == "" {
			return fmt.Errorf("reply: sendgrid_api_key is required")
		}
	case "resend":
		if c.Reply.ResendAPIKey == "" {
			return fmt.Errorf("reply: resend_api_key is required")
		}
	default:
		return fmt.Errorf("reply: unknown provider %q (smtp, sendgrid or resend)", c.Reply.Provider)
	}
	return nil
}
