package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	errs "catbot/pkg/errors"
)

// Config holds all configuration options for the bot
type Config struct {
	// Publishing account on the Instagram Graph API
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Accounts content is fetched from
	Source SourceConfig `yaml:"source" json:"source"`

	// Generative caption API
	Caption CaptionConfig `yaml:"caption" json:"caption"`

	// Local directories, ledger and history database
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Object storage used to expose media at a public URL
	Staging StagingConfig `yaml:"staging" json:"staging"`

	Posting   PostingConfig   `yaml:"posting" json:"posting"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// InstagramConfig holds the publishing account settings
type InstagramConfig struct {
	Username              string        `yaml:"username" json:"username"`
	AccountID             string        `yaml:"account_id" json:"account_id"`
	AccessToken           string        `yaml:"access_token" json:"-"`
	GraphBaseURL          string        `yaml:"graph_base_url" json:"graph_base_url"`
	GraphVersion          string        `yaml:"graph_version" json:"graph_version"`
	ContainerPollInterval time.Duration `yaml:"container_poll_interval" json:"container_poll_interval"`
	ContainerTimeout      time.Duration `yaml:"container_timeout" json:"container_timeout"`
}

// SourceConfig holds the content source settings
type SourceConfig struct {
	SessionID        string        `yaml:"session_id" json:"-"`
	CSRFToken        string        `yaml:"csrf_token" json:"-"`
	UserAgent        string        `yaml:"user_agent" json:"user_agent"`
	BaseURL          string        `yaml:"base_url" json:"base_url"`
	Accounts         []string      `yaml:"accounts" json:"accounts"`
	MinLikes         int           `yaml:"min_likes" json:"min_likes"`
	Lookback         int           `yaml:"lookback" json:"lookback"`
	IncludeImages    bool          `yaml:"include_images" json:"include_images"`
	IncludeVideos    bool          `yaml:"include_videos" json:"include_videos"`
	DownloadTimeout  time.Duration `yaml:"download_timeout" json:"download_timeout"`
	DownloadAttempts int           `yaml:"download_attempts" json:"download_attempts"`
}

// CaptionConfig holds the caption generator settings
type CaptionConfig struct {
	APIKey  string        `yaml:"api_key" json:"-"`
	Model   string        `yaml:"model" json:"model"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// StorageConfig holds filesystem locations. Relative paths resolve
// against DataDir.
type StorageConfig struct {
	DataDir        string        `yaml:"data_dir" json:"data_dir"`
	DownloadsDir   string        `yaml:"downloads_dir" json:"downloads_dir"`
	UserContentDir string        `yaml:"user_content_dir" json:"user_content_dir"`
	ArchiveDir     string        `yaml:"archive_dir" json:"archive_dir"`
	LedgerFile     string        `yaml:"ledger_file" json:"ledger_file"`
	HistoryDB      string        `yaml:"history_db" json:"history_db"`
	StaleAfter     time.Duration `yaml:"stale_after" json:"stale_after"`
}

// StagingConfig holds the S3-compatible bucket settings
type StagingConfig struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Region          string `yaml:"region" json:"region"`
	AccessKeyID     string `yaml:"access_key_id" json:"-"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-"`
	PublicBaseURL   string `yaml:"public_base_url" json:"public_base_url"`
	Prefix          string `yaml:"prefix" json:"prefix"`
}

// PostingConfig holds publishing behaviour
type PostingConfig struct {
	TestingMode   bool          `yaml:"testing_mode" json:"testing_mode"`
	DailyQuota    int           `yaml:"daily_quota" json:"daily_quota"`
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
}

// RateLimitConfig holds the source request pacing
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// ServerConfig holds dashboard settings
type ServerConfig struct {
	Port int `yaml:"port" json:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			GraphBaseURL:          "https://graph.instagram.com",
			GraphVersion:          "v21.0",
			ContainerPollInterval: 5 * time.Second,
			ContainerTimeout:      5 * time.Minute,
		},
		Source: SourceConfig{
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			BaseURL:          "https://www.instagram.com",
			Accounts:         []string{"catsofinstagram", "cats_of_world_", "cats.daily"},
			MinLikes:         1000,
			Lookback:         12,
			IncludeImages:    true,
			IncludeVideos:    true,
			DownloadTimeout:  60 * time.Second,
			DownloadAttempts: 3,
		},
		Caption: CaptionConfig{
			Model:   "gemini-2.0-flash",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
			Timeout: 20 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:        "data",
			DownloadsDir:   "downloads",
			UserContentDir: "user_content",
			ArchiveDir:     "posted",
			LedgerFile:     "posted_media.json",
			HistoryDB:      "history.db",
			StaleAfter:     7 * 24 * time.Hour,
		},
		Staging: StagingConfig{
			Region: "auto",
			Prefix: "catbot/",
		},
		Posting: PostingConfig{
			TestingMode:   true,
			DailyQuota:    2,
			MaxRetries:    3,
			RetryDelay:    30 * time.Second,
			MaxRetryDelay: 2 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         5,
		},
		Server: ServerConfig{
			Port: 5000,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "logs/catbot.log",
		},
	}
}

// Resolve returns p joined onto the data directory unless it is absolute
func (s StorageConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.DataDir, p)
}

// Downloads returns the resolved downloads directory
func (s StorageConfig) Downloads() string { return s.Resolve(s.DownloadsDir) }

// UserContent returns the resolved user content directory
func (s StorageConfig) UserContent() string { return s.Resolve(s.UserContentDir) }

// Archive returns the resolved archive directory
func (s StorageConfig) Archive() string { return s.Resolve(s.ArchiveDir) }

// Ledger returns the resolved ledger file path
func (s StorageConfig) Ledger() string { return s.Resolve(s.LedgerFile) }

// History returns the resolved history database path
func (s StorageConfig) History() string { return s.Resolve(s.HistoryDB) }

// Enabled reports whether staging has enough settings to upload
func (s StagingConfig) Enabled() bool {
	return s.Bucket != "" && s.PublicBaseURL != ""
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errList []error

	setString(&c.Instagram.Username, "INSTAGRAM_USERNAME")
	setString(&c.Instagram.AccountID, "INSTAGRAM_ACCOUNT_ID")
	setString(&c.Instagram.AccessToken, "INSTAGRAM_ACCESS_TOKEN")
	setString(&c.Instagram.GraphVersion, "INSTAGRAM_GRAPH_VERSION")

	setString(&c.Source.SessionID, "INSTAGRAM_SESSION_ID")
	setString(&c.Source.CSRFToken, "INSTAGRAM_CSRF_TOKEN")
	setString(&c.Source.UserAgent, "INSTAGRAM_USER_AGENT")
	if accounts := os.Getenv("SOURCE_ACCOUNTS"); accounts != "" {
		c.Source.Accounts = SplitList(accounts)
	}
	errList = append(errList,
		setInt(&c.Source.MinLikes, "MIN_LIKES"),
		setInt(&c.Source.Lookback, "LOOKBACK_POSTS"),
		setInt(&c.Posting.DailyQuota, "DAILY_POST_QUOTA"),
		setInt(&c.Posting.MaxRetries, "POST_MAX_RETRIES"),
		setInt(&c.Server.Port, "PORT"),
		setBool(&c.Posting.TestingMode, "TESTING_MODE"),
		setDuration(&c.Caption.Timeout, "CAPTION_TIMEOUT"),
	)

	setString(&c.Caption.APIKey, "GEMINI_API_KEY")
	setString(&c.Caption.Model, "CAPTION_MODEL")
	setString(&c.Caption.BaseURL, "CAPTION_BASE_URL")

	setString(&c.Staging.Bucket, "STAGING_BUCKET")
	setString(&c.Staging.Endpoint, "STAGING_ENDPOINT")
	setString(&c.Staging.Region, "STAGING_REGION")
	setString(&c.Staging.AccessKeyID, "STAGING_ACCESS_KEY")
	setString(&c.Staging.SecretAccessKey, "STAGING_SECRET_KEY")
	setString(&c.Staging.PublicBaseURL, "STAGING_PUBLIC_URL")

	setString(&c.Storage.DataDir, "DATA_DIR")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.File, "LOG_FILE")

	return errors.Join(errList...)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not a number", key, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// SplitList splits a comma-separated list, trimming blanks and a leading @
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "@")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"catbot.yaml",
		".catbot.yaml",
		".catbot.yml",
		filepath.Join(home, ".config", "catbot", "config.yaml"),
		filepath.Join(home, ".config", "catbot", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Publishing credentials are
// only required outside testing mode.
func (c *Config) Validate() error {
	var errList []error

	if len(c.Source.Accounts) == 0 {
		errList = append(errList, errors.New("at least one source account is required"))
	}
	if c.Source.MinLikes < 0 {
		errList = append(errList, errors.New("minimum likes cannot be negative"))
	}
	if c.Source.Lookback <= 0 {
		errList = append(errList, errors.New("lookback must be positive"))
	}
	if !c.Source.IncludeImages && !c.Source.IncludeVideos {
		errList = append(errList, errors.New("at least one of images or videos must be included"))
	}
	if c.Source.DownloadAttempts <= 0 {
		errList = append(errList, errors.New("download attempts must be positive"))
	}

	if c.Caption.Timeout <= 0 {
		errList = append(errList, errors.New("caption timeout must be positive"))
	}

	if c.Storage.DataDir == "" {
		errList = append(errList, errors.New("data directory is required"))
	}
	if c.Storage.LedgerFile == "" {
		errList = append(errList, errors.New("ledger file is required"))
	}

	if c.Posting.DailyQuota < 0 {
		errList = append(errList, errors.New("daily quota cannot be negative"))
	}
	if c.Posting.MaxRetries < 0 {
		errList = append(errList, errors.New("max retries cannot be negative"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errList = append(errList, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errList = append(errList, errors.New("burst size must be positive"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errList = append(errList, fmt.Errorf("invalid port %d", c.Server.Port))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errList = append(errList, errors.New("invalid log level"))
	}

	if !c.Posting.TestingMode {
		if c.Instagram.AccessToken == "" {
			errList = append(errList, errors.New("Instagram access token is required when not in testing mode"))
		}
		if c.Instagram.AccountID == "" {
			errList = append(errList, errors.New("Instagram account ID is required when not in testing mode"))
		}
		if !c.Staging.Enabled() {
			errList = append(errList, errors.New("staging bucket and public URL are required when not in testing mode"))
		}
	}

	return errors.Join(errList...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if testing, ok := flags["testing"].(bool); ok {
		c.Posting.TestingMode = testing
	}
	if dataDir, ok := flags["data-dir"].(string); ok && dataDir != "" {
		c.Storage.DataDir = dataDir
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if port, ok := flags["port"].(int); ok && port > 0 {
		c.Server.Port = port
	}
	if accounts, ok := flags["accounts"].(string); ok && accounts != "" {
		c.Source.Accounts = SplitList(accounts)
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	return LoadWith(configPath, flags, nil)
}

// LoadWith is Load with a hook that may fill missing settings, such as
// stored credentials, before validation.
func LoadWith(configPath string, flags map[string]interface{}, fill func(*Config)) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".catbot.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "failed to load config file")
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "failed to load environment variables")
	}

	config.MergeCommandLineFlags(flags)
	if fill != nil {
		fill(config)
	}

	if err := config.Validate(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "configuration validation failed")
	}

	return config, nil
}
