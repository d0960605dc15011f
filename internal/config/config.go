package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Push     PushConfig
	Auth     AuthConfig
	Reminder ReminderConfig
	Backup   BackupConfig
}

type ServerConfig struct {
	Port string
	// RSVPPerMinute caps RSVP toggles per user.
	RSVPPerMinute int
}

type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

type AuthConfig struct {
	JWTSecret string
}

type ReminderConfig struct {
	Tolerance        time.Duration
	DispatchInterval time.Duration
}

type BackupConfig struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Passphrase string
	Interval   time.Duration
	Retention  time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	rsvpLimit, err := envInt("WESHARE_RSVP_RATE_LIMIT", 30)
	if err != nil {
		return nil, err
	}
	tolerance, err := envDuration("WESHARE_REMINDER_TOLERANCE", 60*time.Second)
	if err != nil {
		return nil, err
	}
	interval, err := envDuration("WESHARE_DISPATCH_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}

	backupInterval, err := envDuration("WESHARE_BACKUP_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	backupRetention, err := envDuration("WESHARE_BACKUP_RETENTION", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          envString("WESHARE_PORT", "8080"),
			RSVPPerMinute: rsvpLimit,
		},
		Database: DatabaseConfig{
			Path: envString("WESHARE_DB_PATH", "weshare.db"),
		},
		Log: LogConfig{
			Level:  envString("WESHARE_LOG_LEVEL", "info"),
			Format: envString("WESHARE_LOG_FORMAT", "text"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  envString("WESHARE_VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: envString("WESHARE_VAPID_PRIVATE_KEY", ""),
			Subscriber:      envString("WESHARE_PUSH_SUBSCRIBER", ""),
		},
		Auth: AuthConfig{
			JWTSecret: envString("WESHARE_JWT_SECRET", ""),
		},
		Reminder: ReminderConfig{
			Tolerance:        tolerance,
			DispatchInterval: interval,
		},
		Backup: BackupConfig{
			Endpoint:   envString("WESHARE_BACKUP_S3_ENDPOINT", ""),
			Bucket:     envString("WESHARE_BACKUP_S3_BUCKET", ""),
			Region:     envString("WESHARE_BACKUP_S3_REGION", "us-east-1"),
			AccessKey:  envString("WESHARE_BACKUP_S3_ACCESS_KEY", ""),
			SecretKey:  envString("WESHARE_BACKUP_S3_SECRET_KEY", ""),
			Passphrase: envString("WESHARE_BACKUP_PASSPHRASE", ""),
			Interval:   backupInterval,
			Retention:  backupRetention,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("missing env WESHARE_JWT_SECRET")
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("WESHARE_VAPID_PUBLIC_KEY and WESHARE_VAPID_PRIVATE_KEY must be set together")
	}
	if c.Reminder.Tolerance <= 0 {
		return fmt.Errorf("WESHARE_REMINDER_TOLERANCE must be positive, got %s", c.Reminder.Tolerance)
	}
	if c.Reminder.DispatchInterval <= 0 {
		return fmt.Errorf("WESHARE_DISPATCH_INTERVAL must be positive, got %s", c.Reminder.DispatchInterval)
	}
	if c.Backup.Bucket != "" && c.Backup.Passphrase == "" {
		return fmt.Errorf("WESHARE_BACKUP_PASSPHRASE is required when WESHARE_BACKUP_S3_BUCKET is set")
	}
	if c.Backup.Interval <= 0 || c.Backup.Retention <= 0 {
		return fmt.Errorf("WESHARE_BACKUP_INTERVAL and WESHARE_BACKUP_RETENTION must be positive")
	}
	if c.Server.RSVPPerMinute <= 0 {
		return fmt.Errorf("WESHARE_RSVP_RATE_LIMIT must be positive, got %d", c.Server.RSVPPerMinute)
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
