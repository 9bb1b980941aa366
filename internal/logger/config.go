package logger

// ValidLogLevels enumerates the accepted log level strings.
var ValidLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Config configures logging behavior with per-component log levels.
type Config struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultLevel == "" {
		c.DefaultLevel = "info"
	}
	if c.ComponentLevels == nil {
		c.ComponentLevels = make(map[string]string)
	}
}

// NewComponentLoggerFromConfig builds a logger for the given component,
// honoring a per-component level override when one is configured.
func NewComponentLoggerFromConfig(component string, cfg *Config) *Logger {
	level := "info"
	development := false

	if cfg != nil {
		if cfg.DefaultLevel != "" {
			level = cfg.DefaultLevel
		}
		if override, ok := cfg.ComponentLevels[component]; ok && override != "" {
			level = override
		}
		development = cfg.Development
	}

	l, err := NewLogger(level, development)
	if err != nil {
		l = GetDefaultLogger()
	}
	return l.WithComponent(component)
}
