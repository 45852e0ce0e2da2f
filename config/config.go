// Package config loads stellar-remit settings.
//
// Values are layered, later sources winning: built-in defaults, an optional
// YAML file, an optional .env file, then STELLAR_* environment variables.
// Command-line flags are applied on top by the binaries.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/0rlych1kk4/stellar-remit/remitlib"
)

const EnvPrefix = "STELLAR_"

// DefaultPaths are tried, in order, when no config file is given.
var DefaultPaths = []string{
	"config/default.yaml",
	"config/default.yml",
}

type Config struct {
	HorizonURL        string        `yaml:"horizon_url"`
	SenderSecret      string        `yaml:"sender_secret"`
	ReceiverAddress   string        `yaml:"receiver_address"`
	Amount            int64         `yaml:"amount"`
	Memo              string        `yaml:"memo"`
	Fee               int64         `yaml:"fee"`
	Network           string        `yaml:"network"`
	MonitorAddr       string        `yaml:"monitor_addr"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

func Default() Config {
	return Config{
		Amount:      remitlib.DefaultAmount,
		Memo:        remitlib.DefaultMemo,
		Fee:         remitlib.MinimumFee,
		Network:     "testnet",
		MonitorAddr: "127.0.0.1:3000",
		Timeout:     30 * time.Second,
	}
}

// Options select the files Load reads. An explicit File must exist; DotEnv
// defaults to ".env" and may be missing.
type Options struct {
	File   string
	DotEnv string
}

func Load(opts Options) (Config, error) {
	cfg := Default()

	if err := loadFile(&cfg, opts.File); err != nil {
		return Config{}, err
	}

	dotEnvPath := opts.DotEnv
	if dotEnvPath == "" {
		dotEnvPath = ".env"
	}
	dotEnv, err := godotenv.Read(dotEnvPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, &remitlib.ConfigError{Field: "dotenv", Err: err}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := dotEnv[key]
		return v, ok
	}
	if err := ApplyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	candidates := DefaultPaths
	required := path != ""
	if required {
		candidates = []string{path}
	}

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && !required {
				continue
			}
			return &remitlib.ConfigError{Field: "config file", Err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return &remitlib.ConfigError{Field: "config file", Err: fmt.Errorf("%s: %w", p, err)}
		}
		return nil
	}
	return nil
}

// ApplyEnv overrides cfg with STELLAR_* variables found through lookup. Empty
// values are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("HORIZON_URL"); ok {
		cfg.HorizonURL = v
	}
	if v, ok := get("SENDER_SECRET"); ok {
		cfg.SenderSecret = v
	}
	if v, ok := get("RECEIVER_ADDRESS"); ok {
		cfg.ReceiverAddress = v
	}
	if v, ok := get("MEMO"); ok {
		cfg.Memo = v
	}
	if v, ok := get("NETWORK"); ok {
		cfg.Network = v
	}
	if v, ok := get("MONITOR_ADDR"); ok {
		cfg.MonitorAddr = v
	}
	if v, ok := get("AMOUNT"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &remitlib.ConfigError{Field: EnvPrefix + "AMOUNT", Err: err}
		}
		cfg.Amount = n
	}
	if v, ok := get("FEE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &remitlib.ConfigError{Field: EnvPrefix + "FEE", Err: err}
		}
		cfg.Fee = n
	}
	if v, ok := get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &remitlib.ConfigError{Field: EnvPrefix + "TIMEOUT", Err: err}
		}
		cfg.Timeout = d
	}
	if v, ok := get("REQUESTS_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &remitlib.ConfigError{Field: EnvPrefix + "REQUESTS_PER_SECOND", Err: err}
		}
		cfg.RequestsPerSecond = f
	}
	return nil
}

// ValidateGateway checks the settings every binary needs.
func (c Config) ValidateGateway() error {
	if strings.TrimSpace(c.HorizonURL) == "" {
		return &remitlib.ConfigError{Field: "horizon_url"}
	}
	u, err := url.Parse(c.HorizonURL)
	if err != nil {
		return &remitlib.ConfigError{Field: "horizon_url", Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &remitlib.ConfigError{Field: "horizon_url", Err: fmt.Errorf("%q is not an http(s) URL", c.HorizonURL)}
	}
	if c.Timeout <= 0 {
		return &remitlib.ConfigError{Field: "timeout", Err: fmt.Errorf("must be positive, got %v", c.Timeout)}
	}
	if c.RequestsPerSecond < 0 {
		return &remitlib.ConfigError{Field: "requests_per_second", Err: fmt.Errorf("must not be negative, got %v", c.RequestsPerSecond)}
	}
	return nil
}

// Validate checks that a payment can be attempted. Key encodings are checked
// later by remitlib, which reports them as crypto errors.
func (c Config) Validate() error {
	if err := c.ValidateGateway(); err != nil {
		return err
	}
	if strings.TrimSpace(c.SenderSecret) == "" {
		return &remitlib.ConfigError{Field: "sender_secret"}
	}
	if strings.TrimSpace(c.ReceiverAddress) == "" {
		return &remitlib.ConfigError{Field: "receiver_address"}
	}
	return nil
}

// Fields is a log-safe view of the configuration.
func (c Config) Fields() logrus.Fields {
	secret := "<unset>"
	if c.SenderSecret != "" {
		secret = "<redacted>"
	}
	return logrus.Fields{
		"horizon":  c.HorizonURL,
		"secret":   secret,
		"receiver": c.ReceiverAddress,
		"amount":   c.Amount,
		"memo":     c.Memo,
		"fee":      c.Fee,
		"network":  c.Network,
	}
}
