package account

import (
	"context"
	"errors"
	"fmt"
	"makerworld-stats/internal/makerworld"
	"makerworld-stats/lib/configutil"
	"strings"
	"time"
)

type AccountConfig struct {
	Username  string `json:"username"`
	Cookie    string `json:"cookie"`
	UserAgent string `json:"user_agent"`
}

type OptionsConfig struct {
	// MaxModels caps the number of model pages scanned per cycle, 0 scans all.
	MaxModels int `json:"max_models"`
	// Cookie overrides account.cookie when it is not empty.
	Cookie string `json:"cookie"`
}

type HttpConfig struct {
	Attempts          int     `json:"attempts"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	DumpDir           string  `json:"dump_dir"`
}

type Config struct {
	Account AccountConfig `json:"account"`
	Options OptionsConfig `json:"options"`
	Http    HttpConfig    `json:"http"`

	IntervalSeconds            int  `json:"interval_seconds"`
	CycleTimeoutSeconds        int  `json:"cycle_timeout_seconds"`
	ResetScheduleOnManual      bool `json:"reset_schedule_on_manual"`
	AuthEscalationThreshold    int  `json:"auth_escalation_threshold"`
	RateLimitBackoffSeconds    int  `json:"rate_limit_backoff_seconds"`
	MaxRateLimitBackoffSeconds int  `json:"max_rate_limit_backoff_seconds"`

	// HistoryPath is the sqlite file published snapshots are recorded to, empty disables history.
	HistoryPath string `json:"history_path"`
}

const (
	DefaultInterval     = time.Hour
	DefaultCycleTimeout = 90 * time.Second
)

func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

func (c Config) Interval() time.Duration {
	return seconds(c.IntervalSeconds, DefaultInterval)
}

func (c Config) CycleTimeout() time.Duration {
	return seconds(c.CycleTimeoutSeconds, DefaultCycleTimeout)
}

// ClientOptions returns the fetcher options, unset values keep the fetcher defaults.
func (c Config) ClientOptions() makerworld.Options {
	return makerworld.Options{
		Timeout:           seconds(c.Http.TimeoutSeconds, 0),
		Attempts:          c.Http.Attempts,
		RequestsPerSecond: c.Http.RequestsPerSecond,
		DumpDir:           c.Http.DumpDir,
	}
}

// Settings are the normalized values a single update cycle needs.
type Settings struct {
	Credentials makerworld.Credentials
	MaxModels   int
}

var (
	ErrNoUsername    = errors.New("account.username is required")
	ErrNoHistoryPath = errors.New("history_path is not configured")
)

// NormalizeUsername strips whitespace and a leading '@'.
func NormalizeUsername(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "@")
}

var cookieControlChars = strings.NewReplacer("\r", "", "\n", "", "\t", "")

// NormalizeCookie accepts a cookie copied together with its header name
// and drops line breaks and tabs picked up while pasting it.
func NormalizeCookie(raw string) string {
	cookie := raw
	if strings.HasPrefix(strings.ToLower(cookie), "cookie:") {
		cookie = cookie[len("cookie:"):]
	}
	return cookieControlChars.Replace(strings.TrimSpace(cookie))
}

func (c Config) Settings() (Settings, error) {
	username := NormalizeUsername(c.Account.Username)
	if username == "" {
		return Settings{}, ErrNoUsername
	}

	cookie := c.Account.Cookie
	if strings.TrimSpace(c.Options.Cookie) != "" {
		cookie = c.Options.Cookie
	}

	userAgent := strings.TrimSpace(c.Account.UserAgent)
	if userAgent == "" {
		userAgent = makerworld.DefaultUserAgent
	}

	maxModels := c.Options.MaxModels
	if maxModels < 0 {
		maxModels = 0
	}

	return Settings{
		Credentials: makerworld.Credentials{
			Username:  username,
			Cookie:    NormalizeCookie(cookie),
			UserAgent: userAgent,
		},
		MaxModels: maxModels,
	}, nil
}

func Load(path string) (Config, error) {
	config, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, fmt.Errorf("read account config %s: %w", path, err)
	}
	return config, nil
}

// Source provides the settings for a cycle, it is consulted at the start of
// every cycle so credential changes apply without a restart.
type Source interface {
	Load(ctx context.Context) (Settings, error)
}

// FileSource re-reads a config file (and its .local override) on every Load.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) (Settings, error) {
	config, err := Load(s.Path)
	if err != nil {
		return Settings{}, err
	}
	return config.Settings()
}

type StaticSource struct {
	Settings Settings
}

func (s StaticSource) Load(ctx context.Context) (Settings, error) {
	return s.Settings, nil
}
