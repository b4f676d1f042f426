/*

Package `zap` wraps Zap logging.

We use the convenient structured logging api of `Levelw(msg, kv ...)`
functions from the sugared logger.  The level is explicit configuration,
passed as a string from the command line, with `info` as the default.

*/
package zap

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger = zap.SugaredLogger

// `DefaultLevel` is used if `New()` is called with an empty level.
const DefaultLevel = "info"

func NewProduction() (*Logger, error) {
	return New("prod", DefaultLevel)
}

func NewDevelopment() (*Logger, error) {
	return New("dev", DefaultLevel)
}

// `New()` creates a logger of `kind` `prod` (JSON) or `dev` (console) at the
// given level, one of `debug`, `info`, `warn`, `error`.
func New(kind, level string) (*Logger, error) {
	if level == "" {
		level = DefaultLevel
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level `%s`: %v", level, err)
	}

	var cfg zap.Config
	switch kind {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "dev":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid logger kind `%s`", kind)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
