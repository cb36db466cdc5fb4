package mainloop

import "time"

// Config controls Loop behavior.
type Config struct {
	// Name labels log lines (default: "main").
	Name string
	// QueueSize is the initial queue capacity (default: 1024). The queue grows as needed.
	QueueSize int
	// MaxDrain bounds a single xevent drain turn on the loop (default: 10ms).
	MaxDrain time.Duration
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Name:      "main",
		QueueSize: 1024,
		MaxDrain:  10 * time.Millisecond,
	}
}

// ConfigFromMap builds a Config from loosely typed values, e.g. decoded YAML.
func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}

	getStr := func(k, d string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
		return d
	}

	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	def := Defaults()
	return Config{
		Name:      getStr("name", def.Name),
		QueueSize: max(1, getInt("queue_size", def.QueueSize)),
		MaxDrain:  getDur("max_drain", def.MaxDrain),
	}
}

func (c Config) withDefaults() Config {
	def := Defaults()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.QueueSize < 1 {
		c.QueueSize = def.QueueSize
	}
	if c.MaxDrain <= 0 {
		c.MaxDrain = def.MaxDrain
	}
	return c
}
