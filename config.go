package xevent

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries the bus options that can be loaded from the environment or a YAML file.
// AsyncPoolSize caps the executor created by the bus; zero or less means unbounded.
type Config struct {
	EventInheritance             bool          `env:"XEVENT_EVENT_INHERITANCE" envDefault:"true" yaml:"event_inheritance"`
	LogSubscriberExceptions      bool          `env:"XEVENT_LOG_SUBSCRIBER_EXCEPTIONS" envDefault:"true" yaml:"log_subscriber_exceptions"`
	LogNoSubscriberMessages      bool          `env:"XEVENT_LOG_NO_SUBSCRIBER_MESSAGES" envDefault:"true" yaml:"log_no_subscriber_messages"`
	SendSubscriberExceptionEvent bool          `env:"XEVENT_SEND_SUBSCRIBER_EXCEPTION_EVENT" envDefault:"true" yaml:"send_subscriber_exception_event"`
	SendNoSubscriberEvent        bool          `env:"XEVENT_SEND_NO_SUBSCRIBER_EVENT" envDefault:"true" yaml:"send_no_subscriber_event"`
	ThrowSubscriberException     bool          `env:"XEVENT_THROW_SUBSCRIBER_EXCEPTION" envDefault:"false" yaml:"throw_subscriber_exception"`
	IgnoreGeneratedIndex         bool          `env:"XEVENT_IGNORE_GENERATED_INDEX" envDefault:"false" yaml:"ignore_generated_index"`
	MaxMainThreadDrain           time.Duration `env:"XEVENT_MAX_MAIN_THREAD_DRAIN" envDefault:"10ms" yaml:"max_main_thread_drain"`
	AsyncPoolSize                int           `env:"XEVENT_ASYNC_POOL_SIZE" envDefault:"0" yaml:"async_pool_size"`
	ObserverWorkers              int           `env:"XEVENT_OBSERVER_WORKERS" envDefault:"4" yaml:"observer_workers"`
	ObserverBufferSize           int           `env:"XEVENT_OBSERVER_BUFFER_SIZE" envDefault:"1024" yaml:"observer_buffer_size"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		EventInheritance:             true,
		LogSubscriberExceptions:      true,
		LogNoSubscriberMessages:      true,
		SendSubscriberExceptionEvent: true,
		SendNoSubscriberEvent:        true,
		MaxMainThreadDrain:           10 * time.Millisecond,
		ObserverWorkers:              4,
		ObserverBufferSize:           1024,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxMainThreadDrain <= 0 {
		return fmt.Errorf("config: max_main_thread_drain must be > 0, got %v", c.MaxMainThreadDrain)
	}
	if c.ObserverWorkers < 0 {
		return fmt.Errorf("config: observer_workers must be >= 0, got %d", c.ObserverWorkers)
	}
	if c.ObserverBufferSize < 0 {
		return fmt.Errorf("config: observer_buffer_size must be >= 0, got %d", c.ObserverBufferSize)
	}
	return nil
}

// ConfigFromEnv reads XEVENT_* variables. Given files are loaded into the environment first;
// without files a .env in the working directory is loaded if present.
func ConfigFromEnv(files ...string) (Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("config: load env files: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// ConfigFromYAML decodes r over Defaults(), so omitted keys keep their default.
func ConfigFromYAML(r io.Reader) (Config, error) {
	cfg := Defaults()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, cfg.Validate()
}

// ConfigFromFile reads a YAML configuration file.
func ConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return ConfigFromYAML(f)
}
