package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarConfig describes a single Google calendar the display aggregates.
type CalendarConfig struct {
	// ID is the Google calendar ID (e.g. an address or a holiday feed ID).
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown on the admin page.
	Name string `yaml:"name" json:"name"`
	// Color is the display color applied to this calendar's events.
	Color string `yaml:"color" json:"color"`
	// Holiday marks the calendar as a holiday feed; its events tint the
	// whole day cell.
	Holiday bool `yaml:"holiday,omitempty" json:"holiday,omitempty"`
}

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown on the admin page.
	Name string `yaml:"name" json:"name"`
	// Color is the display color applied to this feed's events.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// GoogleConfig holds the OAuth client settings for the Google Calendar
// source. TokenPath defaults to <data_dir>/token.json.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri" json:"redirect_uri"`
	TokenPath    string `yaml:"token_path,omitempty" json:"token_path,omitempty"`
}

// WeatherConfig selects which JMA weekly forecast the display overlays.
type WeatherConfig struct {
	// Area is the forecast title to look for in the JMA feed,
	// e.g. "神奈川県府県週間天気予報".
	Area string `yaml:"area" json:"area"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the display UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds the OAuth token, ICS cache and preview snapshot.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Timezone is the IANA display timezone (e.g. "Asia/Tokyo"). All
	// date bucketing happens in this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is the first grid column.
	// Supported values: "sunday" (default), "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Weeks is the number of grid rows; the display shows a rolling
	// Weeks*7-day window starting at the current week.
	Weeks int `yaml:"weeks" json:"weeks"`

	// RefreshCron is a cron-style schedule for re-fetching events and
	// weather (default every 10 minutes).
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// AdminPassword protects the admin API; empty disables it and the
	// admin routes refuse all requests.
	AdminPassword string `yaml:"admin_password,omitempty" json:"admin_password,omitempty"`

	Google    GoogleConfig     `yaml:"google" json:"google"`
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`
	ICS       []ICSConfig      `yaml:"ics" json:"ics"`
	Weather   WeatherConfig    `yaml:"weather" json:"weather"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:3000",
		DataDir:     "./data",
		Timezone:    "Asia/Tokyo",
		WeekStart:   "sunday",
		Weeks:       4,
		RefreshCron: "*/10 * * * *",
		Calendars:   []CalendarConfig{},
		ICS:         []ICSConfig{},
		Weather: WeatherConfig{
			Area: "神奈川県府県週間天気予報",
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:3000"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Tokyo"
	}
	switch c.WeekStart {
	case "sunday", "monday":
		// ok
	default:
		// Unknown value; fall back to sunday to avoid surprising layouts.
		c.WeekStart = "sunday"
	}
	if c.Weeks <= 0 {
		c.Weeks = 4
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/10 * * * *"
	}
	if c.Weather.Area == "" {
		c.Weather.Area = "神奈川県府県週間天気予報"
	}
	if c.Google.TokenPath == "" {
		c.Google.TokenPath = filepath.Join(c.DataDir, "token.json")
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Validate reports whether the config is structurally usable. It mirrors
// what the admin API accepts for POST /api/config.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	for i, cal := range c.Calendars {
		if cal.ID == "" || cal.Name == "" || cal.Color == "" {
			return fmt.Errorf("calendars[%d]: id, name and color are required", i)
		}
	}
	for i, src := range c.ICS {
		if src.URL == "" {
			return fmt.Errorf("ics[%d]: url is required", i)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			cfg.Normalize()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".famcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
