package core

import (
	"strings"

	"github.com/rs/zerolog"
)

// Environment is the deployment stage the router runs in. It decides how
// much the service logs and whether clinical text may appear in logs.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

var environmentAliases = map[string]Environment{
	"dev":   Development,
	"local": Development,
	"stage": Staging,
	"test":  Testing,
	"ci":    Testing,
	"prod":  Production,
}

func (e Environment) String() string {
	return string(e)
}

func (e Environment) IsProduction() bool {
	return e == Production
}

// LogLevel is debug for development and testing, info elsewhere.
func (e Environment) LogLevel() zerolog.Level {
	switch e {
	case Development, Testing:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// ConsoleLogs selects the human-readable writer; staging and production
// emit JSON lines for collectors.
func (e Environment) ConsoleLogs() bool {
	return e == Development || e == Testing
}

// LogsClinicalText reports whether prompt and transcript excerpts may be
// written to logs. Only local development allows it.
func (e Environment) LogsClinicalText() bool {
	return e == Development
}

// ParseEnvironment maps ENVIRONMENT values (case-insensitive, short aliases
// accepted) onto a known stage. Unknown values fall back to Development.
func ParseEnvironment(v string) Environment {
	v = strings.ToLower(strings.TrimSpace(v))
	switch env := Environment(v); env {
	case Development, Staging, Testing, Production:
		return env
	}
	if env, ok := environmentAliases[v]; ok {
		return env
	}
	return Development
}
