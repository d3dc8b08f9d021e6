package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"negfilter/internal/model"
)

const defaultAdminSecret = "CHANGEME_STRONG_SECRET"

// EnvPrefix prefixes environment overrides, e.g. NEGFILTER_ADMIN_SECRET.
const EnvPrefix = "NEGFILTER"

type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
	File   string `json:"file" mapstructure:"file"`
}

type Config struct {
	ListenAddress       string           `json:"listen_address" mapstructure:"listen_address"`
	AdminSecret         string           `json:"admin_secret" mapstructure:"admin_secret"`
	AdminBindCIDRs      []string         `json:"admin_bind_cidrs" mapstructure:"admin_bind_cidrs"`
	DatabasePath        string           `json:"database_path" mapstructure:"database_path"`
	OutputDir           string           `json:"output_dir" mapstructure:"output_dir"`
	InboxDir            string           `json:"inbox_dir" mapstructure:"inbox_dir"`
	InboxRuleList       string           `json:"inbox_rule_list" mapstructure:"inbox_rule_list"`
	DailyBatchTime      string           `json:"daily_batch_time" mapstructure:"daily_batch_time"`
	BatchCooldownSec    int              `json:"batch_cooldown_sec" mapstructure:"batch_cooldown_sec"`
	MaxWorkers          int              `json:"max_workers" mapstructure:"max_workers"`
	EvalWorkers         int              `json:"eval_workers" mapstructure:"eval_workers"`
	MaxFileBytes        int64            `json:"max_file_bytes" mapstructure:"max_file_bytes"`
	MaxBodyBytes        int64            `json:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPReadTimeoutSec  int              `json:"http_read_timeout_sec" mapstructure:"http_read_timeout_sec"`
	HTTPWriteTimeoutSec int              `json:"http_write_timeout_sec" mapstructure:"http_write_timeout_sec"`
	HTTPIdleTimeoutSec  int              `json:"http_idle_timeout_sec" mapstructure:"http_idle_timeout_sec"`
	DefaultCostPerTerm  float64          `json:"default_cost_per_term" mapstructure:"default_cost_per_term"`
	NGramMax            int              `json:"ngram_max" mapstructure:"ngram_max"`
	Log                 LogConfig        `json:"log" mapstructure:"log"`
	Campaigns           []model.Campaign `json:"campaigns" mapstructure:"campaigns"`
}

func defaultConfig() Config {
	return Config{
		ListenAddress:       "127.0.0.1:8480",
		AdminSecret:         defaultAdminSecret,
		AdminBindCIDRs:      []string{"127.0.0.1/32", "::1/128", "192.168.0.0/16", "10.0.0.0/8"},
		DatabasePath:        "negfilter.db",
		OutputDir:           "output",
		InboxDir:            "inbox",
		InboxRuleList:       "default",
		DailyBatchTime:      "06:00",
		BatchCooldownSec:    60,
		MaxWorkers:          4,
		EvalWorkers:         0,
		MaxFileBytes:        100 << 20,
		MaxBodyBytes:        10 << 20,
		HTTPReadTimeoutSec:  30,
		HTTPWriteTimeoutSec: 60,
		HTTPIdleTimeoutSec:  60,
		DefaultCostPerTerm:  2.5,
		NGramMax:            3,
		Log:                 LogConfig{Level: "info", Format: "text"},
		Campaigns:           []model.Campaign{},
	}
}

// Default returns the configuration written by LoadOrInit for a new file.
func Default() Config { return defaultConfig() }

// LoadOrInit reads the config file at path, writing the defaults there
// first if it does not exist. The bool reports whether the file was created.
// Environment variables prefixed with EnvPrefix override file values.
func LoadOrInit(path string) (Config, bool, error) {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := defaultConfig()
		if err := writeConfig(path, cfg); err != nil {
			return Config{}, false, err
		}
		return cfg, true, nil
	}
	cfg, err := Load(path)
	return cfg, false, err
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Clean(path))
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := registerDefaults(v); err != nil {
		return Config{}, err
	}
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// registerDefaults makes every config key known to viper so environment
// overrides apply to keys absent from the file.
func registerDefaults(v *viper.Viper) error {
	b, err := json.Marshal(defaultConfig())
	if err != nil {
		return err
	}
	var defaults map[string]any
	if err := json.Unmarshal(b, &defaults); err != nil {
		return err
	}
	setDefaults(v, "", defaults)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, values map[string]any) {
	for key, value := range values {
		if nested, ok := value.(map[string]any); ok {
			setDefaults(v, prefix+key+".", nested)
			continue
		}
		v.SetDefault(prefix+key, value)
	}
}

func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(path)), 0o755); err != nil {
		return err
	}
	return writeConfig(filepath.Clean(path), cfg)
}

func writeConfig(path string, cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o600)
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Validate checks the settings every command relies on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("database_path is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("output_dir is required")
	}
	if _, err := ParseClock(c.DailyBatchTime); err != nil {
		return fmt.Errorf("daily_batch_time: %w", err)
	}
	if c.BatchCooldownSec < 0 {
		return errors.New("batch_cooldown_sec must not be negative")
	}
	if c.MaxWorkers <= 0 || c.MaxWorkers > 64 {
		return errors.New("max_workers must be 1..64")
	}
	if c.EvalWorkers < 0 || c.EvalWorkers > 256 {
		return errors.New("eval_workers must be 0..256")
	}
	if c.MaxFileBytes <= 0 {
		return errors.New("max_file_bytes must be positive")
	}
	if c.DefaultCostPerTerm <= 0 {
		return errors.New("default_cost_per_term must be positive")
	}
	if c.NGramMax < 1 || c.NGramMax > 5 {
		return errors.New("ngram_max must be 1..5")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	seen := make(map[string]struct{}, len(c.Campaigns))
	for i, cmp := range c.Campaigns {
		name := strings.TrimSpace(cmp.Name)
		if name == "" {
			return fmt.Errorf("campaigns[%d]: name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("campaigns[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(cmp.Terms) == "" {
			return fmt.Errorf("campaign %q: terms is required", name)
		}
		if cmp.Negatives == "" && cmp.RuleList == "" {
			return fmt.Errorf("campaign %q: negatives or rule_list is required", name)
		}
	}
	return nil
}

// ValidateServer adds the checks that only matter when serving HTTP.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("listen_address is required")
	}
	if c.AdminSecret == "" || c.AdminSecret == defaultAdminSecret {
		return errors.New("admin_secret must be set to a non-default value")
	}
	for _, cidr := range c.AdminBindCIDRs {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(cidr)); err != nil {
			return fmt.Errorf("admin_bind_cidrs: %w", err)
		}
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max_body_bytes must be positive")
	}
	return nil
}

func (c Config) CooldownDuration() time.Duration {
	return time.Duration(c.BatchCooldownSec) * time.Second
}

// ParseClock parses a daily HH:MM time.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// MissingKeys lists top-level keys the file at path does not set, typically
// after an upgrade added new settings.
func MissingKeys(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	var defaults map[string]json.RawMessage
	full, err := json.Marshal(defaultConfig())
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(full, &defaults); err != nil {
		return nil, err
	}
	missing := make([]string, 0)
	for key := range defaults {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return missing, nil
}
