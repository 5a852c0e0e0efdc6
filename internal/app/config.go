package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"privcal/internal/cache"
	"privcal/internal/relay"
)

// ConfigFile is the name looked up under Home when no path is given.
const ConfigFile = "config.yaml"

// DefaultRelay is the address cmd/relay listens on by default.
const DefaultRelay = "ws://127.0.0.1:7447"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Timeouts bound every suspension point.
type Timeouts struct {
	Publish   time.Duration `yaml:"publish"`
	Subscribe time.Duration `yaml:"subscribe"`
	Signer    time.Duration `yaml:"signer"`
	Lookup    time.Duration `yaml:"lookup"`
}

// Config holds runtime wiring options for building a Session.
type Config struct {
	Home               string        `yaml:"home"`
	DefaultRelays      []string      `yaml:"default_relays"`
	LookupRelays       []string      `yaml:"lookup_relays"`
	MaxPublishRelays   int           `yaml:"max_publish_relays"`
	DecryptConcurrency int           `yaml:"decrypt_concurrency"`
	Cache              cache.Policy  `yaml:"cache"`
	RelayListTTL       time.Duration `yaml:"relay_list_ttl"`
	Timeouts           Timeouts      `yaml:"timeouts"`
	AuthValidity       time.Duration `yaml:"auth_validity"`
	MetricsAddr        string        `yaml:"metrics_addr"`
	// Bunker, when set, is a bunker:// URL of a remote signer used instead
	// of the local key.
	Bunker string `yaml:"bunker"`
	// SignerRate limits signer calls per second; zero means unlimited.
	SignerRate  float64 `yaml:"signer_rate"`
	SignerBurst int     `yaml:"signer_burst"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig(home string) Config {
	return Config{
		Home:               home,
		DefaultRelays:      []string{DefaultRelay},
		MaxPublishRelays:   5,
		DecryptConcurrency: 5,
		Cache:              cache.DefaultPolicy(),
		RelayListTTL:       5 * time.Minute,
		Timeouts: Timeouts{
			Publish:   10 * time.Second,
			Subscribe: 10 * time.Second,
			Signer:    10 * time.Second,
			Lookup:    5 * time.Second,
		},
		AuthValidity: 10 * time.Minute,
		SignerBurst:  10,
	}
}

// LoadConfig reads path, or <home>/config.yaml when path is empty, over
// DefaultConfig(home). A missing default file is not an error; a missing
// explicit path is.
func LoadConfig(path, home string) (Config, error) {
	cfg := DefaultConfig(home)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, ConfigFile)
	}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return cfg, cfg.Validate()
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := decodeConfig(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Home == "" {
		cfg.Home = home
	}
	return cfg, cfg.Validate()
}

func decodeConfig(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects values the session cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Home == "" {
		errs = append(errs, errors.New("home is required"))
	}
	if len(relay.NormalizeURLs(c.DefaultRelays)) == 0 {
		errs = append(errs, errors.New("default_relays needs at least one ws:// or wss:// url"))
	}
	for _, u := range c.LookupRelays {
		if _, err := relay.NormalizeURL(u); err != nil {
			errs = append(errs, fmt.Errorf("lookup_relays: %w", err))
		}
	}
	if c.MaxPublishRelays <= 0 {
		errs = append(errs, errors.New("max_publish_relays must be positive"))
	}
	if c.DecryptConcurrency <= 0 {
		errs = append(errs, errors.New("decrypt_concurrency must be positive"))
	}
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RelayListTTL <= 0 {
		errs = append(errs, errors.New("relay_list_ttl must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"timeouts.publish":   c.Timeouts.Publish,
		"timeouts.subscribe": c.Timeouts.Subscribe,
		"timeouts.signer":    c.Timeouts.Signer,
		"timeouts.lookup":    c.Timeouts.Lookup,
		"auth_validity":      c.AuthValidity,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.SignerRate < 0 || (c.SignerRate > 0 && c.SignerBurst <= 0) {
		errs = append(errs, errors.New("signer_rate needs a positive signer_burst"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
