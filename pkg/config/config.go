package config

import (
	"os"
	"time"

	"github.com/cuemby/strata/pkg/serr"
	"gopkg.in/yaml.v3"
)

// Duration decodes a YAML duration string ("30s") the way
// time.ParseDuration would; time.Duration itself has no YAML
// unmarshaler, so the configuration surface uses this instead.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return serr.Wrap(serr.ParseFailed, err, "config: parsing duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std converts d to a time.Duration for use with the standard library.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the typed configuration surface: thread pool
// sizing, the backend provider selection, and producer queue tunables.
type Config struct {
	ThreadCount int `yaml:"thread_count"`
	Threads []string `yaml:"threads"`

	DB struct {
		Provider string `yaml:"provider"`
		ThreadCount int `yaml:"thread_count"`
	} `yaml:"db"`

	Producer struct {
		MessageTTL Duration `yaml:"message_ttl"`
		DequeueRetryInterval Duration `yaml:"dequeue_retry_interval"`
	} `yaml:"producer"`
}

// Load reads path as YAML into both a generic Tree (for callers that
// need dotted-path access or further Merge-ing) and a decoded Config,
// then Validates — Validate always runs, directly after decode, so a
// merged fragment can never reach the caller unvalidated.
func Load(path string) (*Config, *Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, serr.Wrap(serr.ConfigInvalid, err, "config: reading %s", path)
	}
	tree, err := ParseTree(data)
	if err != nil {
		return nil, nil, err
	}
	cfg := &Config{}
	if err := tree.Decode(cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, tree, nil
}

// LoadMerged is Load followed by merging fragment onto the loaded
// tree and re-decoding/re-validating — the path a preloaded
// crypto-plugin registry fragment takes before it can be trusted.
func LoadMerged(path string, fragment *Tree) (*Config, *Tree, error) {
	cfg, tree, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := tree.Merge(fragment); err != nil {
		return nil, nil, err
	}
	cfg = &Config{}
	if err := tree.Decode(cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, tree, nil
}

// Validate checks the decoded Config for internally-consistent,
// actionable values.
func (c *Config) Validate() error {
	if c.ThreadCount <= 0 {
		return serr.New(serr.ConfigMissingField, "config: thread_count must be positive, got %d", c.ThreadCount)
	}
	if c.DB.Provider == "" {
		return serr.New(serr.ConfigMissingField, "config: db.provider is required")
	}
	if c.DB.ThreadCount <= 0 {
		return serr.New(serr.ConfigMissingField, "config: db.thread_count must be positive, got %d", c.DB.ThreadCount)
	}
	if c.Producer.MessageTTL < 0 {
		return serr.New(serr.ConfigInvalid, "config: producer.message_ttl cannot be negative")
	}
	if c.Producer.DequeueRetryInterval <= 0 {
		return serr.New(serr.ConfigMissingField, "config: producer.dequeue_retry_interval must be positive")
	}
	return nil
}
