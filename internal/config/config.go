// Package config loads the service configuration from a YAML file, a .env
// file and TIMENEST_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TIMENEST_"

type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Timezone is the IANA zone calendar views use when a request does not
	// name one.
	Timezone string `yaml:"timezone"`

	// WeekStart is "monday" or "sunday".
	WeekStart string `yaml:"week_start"`

	// SessionTTL is how long a login stays valid, as a Go duration.
	SessionTTL string `yaml:"session_ttl"`

	// CleanupCron is the standard cron schedule for purging expired sessions
	// and rate-limit entries.
	CleanupCron string `yaml:"cleanup_cron"`

	// SecureCookies marks the session cookie Secure. Enable behind HTTPS.
	SecureCookies bool `yaml:"secure_cookies"`

	// AllowedOrigins lists extra host patterns allowed to open websockets.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// BaseURL is the public address of the web app, used in links.
	BaseURL string `yaml:"base_url"`

	Push   PushConfig   `yaml:"push"`
	Backup BackupConfig `yaml:"backup"`
	Mail   MailConfig   `yaml:"mail"`
}

// PushConfig enables event reminders over Web Push. Reminders are off until
// both VAPID keys are set; `timenest -vapid-keys` prints a fresh pair.
type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	// Subscriber is the contact (mailto: or https:) sent to push services.
	Subscriber string `yaml:"subscriber"`
	// ReminderLead is how long before an occurrence its reminder goes out.
	ReminderLead string `yaml:"reminder_lead"`
}

// BackupConfig enables encrypted database backups to S3-compatible storage.
type BackupConfig struct {
	Cron       string `yaml:"cron"`
	Retention  string `yaml:"retention"`
	Passphrase string `yaml:"passphrase"`
	Endpoint   string `yaml:"s3_endpoint"`
	Bucket     string `yaml:"s3_bucket"`
	Region     string `yaml:"s3_region"`
	AccessKey  string `yaml:"s3_access_key"`
	SecretKey  string `yaml:"s3_secret_key"`
	Prefix     string `yaml:"s3_prefix"`
}

// MailConfig enables invitation mail through Postmark.
type MailConfig struct {
	PostmarkToken string `yaml:"postmark_token"`
	From          string `yaml:"from"`
	// APIURL overrides the Postmark endpoint.
	APIURL string `yaml:"api_url"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:         ":8080",
		DBPath:         "timenest.db",
		LogLevel:       "info",
		LogFormat:      "text",
		Timezone:       "UTC",
		WeekStart:      "monday",
		SessionTTL:     "720h",
		CleanupCron:    "*/15 * * * *",
		AllowedOrigins: []string{},
		BaseURL:        "http://localhost:8080",
		Push: PushConfig{
			Subscriber:   "mailto:admin@localhost",
			ReminderLead: "15m",
		},
		Backup: BackupConfig{
			Cron:      "0 3 * * *",
			Retention: "720h",
			Region:    "us-east-1",
			Prefix:    "timenest",
		},
	}
}

// Normalize fills in missing values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if c.WeekStart == "" {
		c.WeekStart = d.WeekStart
	}
	if c.SessionTTL == "" {
		c.SessionTTL = d.SessionTTL
	}
	if c.CleanupCron == "" {
		c.CleanupCron = d.CleanupCron
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{}
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Push.Subscriber == "" {
		c.Push.Subscriber = d.Push.Subscriber
	}
	if c.Push.ReminderLead == "" {
		c.Push.ReminderLead = d.Push.ReminderLead
	}
	if c.Backup.Cron == "" {
		c.Backup.Cron = d.Backup.Cron
	}
	if c.Backup.Retention == "" {
		c.Backup.Retention = d.Backup.Retention
	}
	if c.Backup.Region == "" {
		c.Backup.Region = d.Backup.Region
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.WeekStart != "monday" && c.WeekStart != "sunday" {
		return fmt.Errorf("week_start %q: must be monday or sunday", c.WeekStart)
	}
	ttl, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return fmt.Errorf("session_ttl %q: %w", c.SessionTTL, err)
	}
	if ttl <= 0 {
		return fmt.Errorf("session_ttl %q: must be positive", c.SessionTTL)
	}
	if _, err := cron.ParseStandard(c.CleanupCron); err != nil {
		return fmt.Errorf("cleanup_cron %q: %w", c.CleanupCron, err)
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return errors.New("push: vapid_public_key and vapid_private_key must be set together")
	}
	lead, err := time.ParseDuration(c.Push.ReminderLead)
	if err != nil {
		return fmt.Errorf("push.reminder_lead %q: %w", c.Push.ReminderLead, err)
	}
	if lead <= 0 || lead > 24*time.Hour {
		return fmt.Errorf("push.reminder_lead %q: must be between 0 and 24h", c.Push.ReminderLead)
	}
	if _, err := cron.ParseStandard(c.Backup.Cron); err != nil {
		return fmt.Errorf("backup.cron %q: %w", c.Backup.Cron, err)
	}
	if keep, err := time.ParseDuration(c.Backup.Retention); err != nil || keep < 0 {
		return fmt.Errorf("backup.retention %q: must be a non-negative duration", c.Backup.Retention)
	}
	if c.Backup.Bucket != "" && c.Backup.Passphrase == "" {
		return errors.New("backup: passphrase is required when s3_bucket is set")
	}
	return nil
}

// PushEnabled reports whether VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != ""
}

// ReminderLead returns Push.ReminderLead as a duration.
func (c *Config) ReminderLead() time.Duration {
	lead, err := time.ParseDuration(c.Push.ReminderLead)
	if err != nil || lead <= 0 {
		return 15 * time.Minute
	}
	return lead
}

// BackupRetention returns Backup.Retention as a duration. Zero keeps every
// backup.
func (c *Config) BackupRetention() time.Duration {
	keep, err := time.ParseDuration(c.Backup.Retention)
	if err != nil || keep < 0 {
		return 0
	}
	return keep
}

// Location returns the configured default timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FirstWeekday returns the weekday calendar weeks start on.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// SessionDuration returns SessionTTL as a duration.
func (c *Config) SessionDuration() time.Duration {
	ttl, err := time.ParseDuration(c.SessionTTL)
	if err != nil || ttl <= 0 {
		return 30 * 24 * time.Hour
	}
	return ttl
}

// LoadEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set are kept.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML file at path, creating it with defaults on first run,
// then applies TIMENEST_* environment overrides and validates the result.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := Save(path, cfg); err != nil {
				return nil, fmt.Errorf("write default config: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LISTEN":       &c.Listen,
		"DB_PATH":      &c.DBPath,
		"LOG_LEVEL":    &c.LogLevel,
		"LOG_FORMAT":   &c.LogFormat,
		"TIMEZONE":     &c.Timezone,
		"WEEK_START":   &c.WeekStart,
		"SESSION_TTL":  &c.SessionTTL,
		"CLEANUP_CRON": &c.CleanupCron,
		"BASE_URL":     &c.BaseURL,

		"VAPID_PUBLIC_KEY":  &c.Push.VAPIDPublicKey,
		"VAPID_PRIVATE_KEY": &c.Push.VAPIDPrivateKey,
		"PUSH_SUBSCRIBER":   &c.Push.Subscriber,
		"REMINDER_LEAD":     &c.Push.ReminderLead,

		"BACKUP_CRON":       &c.Backup.Cron,
		"BACKUP_RETENTION":  &c.Backup.Retention,
		"BACKUP_PASSPHRASE": &c.Backup.Passphrase,
		"S3_ENDPOINT":       &c.Backup.Endpoint,
		"S3_BUCKET":         &c.Backup.Bucket,
		"S3_REGION":         &c.Backup.Region,
		"S3_ACCESS_KEY":     &c.Backup.AccessKey,
		"S3_SECRET_KEY":     &c.Backup.SecretKey,
		"S3_PREFIX":         &c.Backup.Prefix,

		"POSTMARK_TOKEN":   &c.Mail.PostmarkToken,
		"MAIL_FROM":        &c.Mail.From,
		"POSTMARK_API_URL": &c.Mail.APIURL,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(envPrefix + "SECURE_COOKIES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSECURE_COOKIES: %w", envPrefix, err)
		}
		c.SecureCookies = b
	}
	if v, ok := lookup(envPrefix + "ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".timenest-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
