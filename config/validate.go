package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

// Add records a problem.
func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s): %s", len(v.Problems), strings.Join(v.Problems, "; "))
}

// Validate checks the config for values the engine cannot run with.
func (c *Main) Validate() error {
	v := &ValidationError{}

	if len(c.RuleFiles) == 0 {
		v.Add("ruleFiles must not be empty")
	}
	for i, f := range c.RuleFiles {
		if strings.TrimSpace(f) == "" {
			v.Add("ruleFiles[%d] is empty", i)
		}
	}

	for _, id := range c.RemoveByIDs {
		if id <= 0 {
			v.Add("removeById has invalid rule id %d", id)
		}
	}

	if c.Bodies.MaxLengthField <= 0 {
		v.Add("bodies.maxLengthField must be positive")
	}
	if c.Bodies.MaxLengthTotal <= 0 {
		v.Add("bodies.maxLengthTotal must be positive")
	}

	switch c.Matcher.Backend {
	case BackendGo, BackendHyperscan:
	default:
		v.Add("matcher.backend must be %q or %q", BackendGo, BackendHyperscan)
	}
	if c.Matcher.RuntimeCacheSize <= 0 {
		v.Add("matcher.runtimeCacheSize must be positive")
	}

	if _, err := c.LogLevel(); err != nil {
		v.Add("logging.level invalid: %v", err)
	}

	if len(v.Problems) > 0 {
		return v
	}
	return nil
}

// LogLevel is the zerolog level of the diagnostic log.
func (c *Main) LogLevel() (zerolog.Level, error) {
	return zerolog.ParseLevel(c.Logging.Level)
}
