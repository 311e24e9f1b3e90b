package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for CF_TIMEZONE on minimal images

	"github.com/spf13/viper"
)

var (
	ErrEmptyToken = errors.New("error getting CF_TELEGRAM_TOKEN: variable not specified or contains an empty string")
	// ErrInvalidSchedule is returned for digest offsets that are not HH:MM[:SS] or seconds within a day.
	ErrInvalidSchedule = errors.New("invalid digest schedule")
	// ErrInvalidValue is returned for any other malformed setting.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
)

type Config struct {
	Env      string // Env is the current environment: local, development, production.
	Catalog  Catalog
	Storage  Storage
	Schedule Schedule
	Digest   Digest
	Tg       Telegram
}

type Catalog struct {
	URL        string        // URL is the bulk endpoint; single listings live under URL/<id>.
	Timeout    time.Duration // Timeout bounds one HTTP request.
	Attempts   uint
	RetryDelay time.Duration
	// DiscoveryURL is the announcement page scanned for upcoming ids. Empty disables discovery.
	DiscoveryURL string
}

type Storage struct {
	Type    string // Type is either StorageSQLite or StorageFile.
	Path    string // Path is the SQLite database file.
	DataDir string // DataDir is the root directory of the file store.
}

type Schedule struct {
	PollInterval     time.Duration
	Location         *time.Location
	TriggerWeekday   time.Weekday
	DiscoveryWeekday time.Weekday
	Thresholds       []int
}

// Digest holds the offsets since local midnight at which a regular digest may be sent.
type Digest struct {
	Everyday []time.Duration
	Weekdays map[time.Weekday][]time.Duration
}

type Telegram struct {
	Token   string        // Token is an unique telgram bot token.
	Timeout time.Duration // Timeout is a poller timeout duration.
}

// MustLoad loads the configuration and panics if it is incomplete or invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration from CF_ prefixed environment variables and, when
// CF_CONFIG_FILE is set, from that file. Environment variables take precedence.
func Load() (*Config, error) {
	const opn = "config.Load"

	v := viper.New()
	// Automatically binds environment variables to config keys
	v.SetEnvPrefix("CF")
	v.AutomaticEnv()

	// optional args
	v.SetDefault("ENV", "production")
	v.SetDefault("CATALOG_URL", "https://sapi.displate.com/artworks/limited")
	v.SetDefault("CATALOG_TIMEOUT", "15s")
	v.SetDefault("CATALOG_ATTEMPTS", 3)
	v.SetDefault("CATALOG_RETRY_DELAY", "1s")
	v.SetDefault("STORAGE_TYPE", StorageSQLite)
	v.SetDefault("STORAGE_PATH", "tracker.db")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("POLL_INTERVAL", "1m")
	v.SetDefault("TIMEZONE", "CET")
	v.SetDefault("TRIGGER_WEEKDAY", "wednesday")
	v.SetDefault("DISCOVERY_WEEKDAY", "wednesday")
	v.SetDefault("STOCK_THRESHOLDS", "100")
	v.SetDefault("TELEGRAM_TIMEOUT", "15s")

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%s: failed to read config file %q: %w", opn, file, err)
		}
	}

	if v.GetString("TELEGRAM_TOKEN") == "" {
		return nil, ErrEmptyToken
	}

	cfg := &Config{
		Env: v.GetString("ENV"),
		Catalog: Catalog{
			URL:          strings.TrimRight(v.GetString("CATALOG_URL"), "/"),
			Timeout:      v.GetDuration("CATALOG_TIMEOUT"),
			Attempts:     v.GetUint("CATALOG_ATTEMPTS"),
			RetryDelay:   v.GetDuration("CATALOG_RETRY_DELAY"),
			DiscoveryURL: v.GetString("DISCOVERY_URL"),
		},
		Storage: Storage{
			Type:    strings.ToLower(v.GetString("STORAGE_TYPE")),
			Path:    v.GetString("STORAGE_PATH"),
			DataDir: v.GetString("DATA_DIR"),
		},
		Schedule: Schedule{
			PollInterval: v.GetDuration("POLL_INTERVAL"),
		},
		Tg: Telegram{
			Token:   v.GetString("TELEGRAM_TOKEN"),
			Timeout: v.GetDuration("TELEGRAM_TIMEOUT"),
		},
	}

	if cfg.Storage.Type != StorageSQLite && cfg.Storage.Type != StorageFile {
		return nil, fmt.Errorf("%s: %w: CF_STORAGE_TYPE %q", opn, ErrInvalidValue, cfg.Storage.Type)
	}
	if cfg.Schedule.PollInterval <= 0 {
		return nil, fmt.Errorf("%s: %w: CF_POLL_INTERVAL must be positive", opn, ErrInvalidValue)
	}
	if cfg.Catalog.Attempts == 0 {
		cfg.Catalog.Attempts = 1
	}

	var err error
	if cfg.Schedule.Location, err = time.LoadLocation(v.GetString("TIMEZONE")); err != nil {
		return nil, fmt.Errorf("%s: %w: CF_TIMEZONE: %w", opn, ErrInvalidValue, err)
	}
	if cfg.Schedule.TriggerWeekday, err = ParseWeekday(v.GetString("TRIGGER_WEEKDAY")); err != nil {
		return nil, fmt.Errorf("%s: CF_TRIGGER_WEEKDAY: %w", opn, err)
	}
	if cfg.Schedule.DiscoveryWeekday, err = ParseWeekday(v.GetString("DISCOVERY_WEEKDAY")); err != nil {
		return nil, fmt.Errorf("%s: CF_DISCOVERY_WEEKDAY: %w", opn, err)
	}
	if cfg.Schedule.Thresholds, err = parseThresholds(v.GetStringSlice("STOCK_THRESHOLDS")); err != nil {
		return nil, fmt.Errorf("%s: CF_STOCK_THRESHOLDS: %w", opn, err)
	}

	if cfg.Digest.Everyday, err = ParseOffsets(v.GetStringSlice("DIGEST_EVERYDAY")); err != nil {
		return nil, fmt.Errorf("%s: CF_DIGEST_EVERYDAY: %w", opn, err)
	}
	cfg.Digest.Weekdays = make(map[time.Weekday][]time.Duration)
	for day := time.Sunday; day <= time.Saturday; day++ {
		key := "DIGEST_" + strings.ToUpper(day.String())
		offsets, err := ParseOffsets(v.GetStringSlice(key))
		if err != nil {
			return nil, fmt.Errorf("%s: CF_%s: %w", opn, key, err)
		}
		if len(offsets) > 0 {
			cfg.Digest.Weekdays[day] = offsets
		}
	}

	return cfg, nil
}

// ParseWeekday parses an English weekday name, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.TrimSpace(s)
	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.EqualFold(name, day.String()) {
			return day, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: unknown weekday %q", ErrInvalidValue, s)
}

// ParseOffsets parses digest offsets given as HH:MM, HH:MM:SS or seconds since midnight.
// Entries may be separated by commas or whitespace.
func ParseOffsets(entries []string) ([]time.Duration, error) {
	var offsets []time.Duration
	for _, field := range splitFields(entries) {
		offset, err := parseOffset(field)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, offset)
	}
	return offsets, nil
}

func parseOffset(s string) (time.Duration, error) {
	if !strings.Contains(s, ":") {
		seconds, err := strconv.Atoi(s)
		if err != nil || seconds < 0 || seconds >= 24*60*60 {
			return 0, fmt.Errorf("%w: %q is not a number of seconds within a day", ErrInvalidSchedule, s)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q is not HH:MM[:SS]", ErrInvalidSchedule, s)
	}
	limits := []int{24, 60, 60}
	units := []time.Duration{time.Hour, time.Minute, time.Second}

	var offset time.Duration
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n >= limits[i] {
			return 0, fmt.Errorf("%w: %q is not HH:MM[:SS]", ErrInvalidSchedule, s)
		}
		offset += time.Duration(n) * units[i]
	}
	return offset, nil
}

func parseThresholds(entries []string) ([]int, error) {
	var thresholds []int
	for _, field := range splitFields(entries) {
		n, err := strconv.Atoi(field)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: threshold %q must be a positive integer", ErrInvalidValue, field)
		}
		thresholds = append(thresholds, n)
	}
	return thresholds, nil
}

func splitFields(entries []string) []string {
	var fields []string
	for _, entry := range entries {
		fields = append(fields, strings.FieldsFunc(entry, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})...)
	}
	return fields
}
