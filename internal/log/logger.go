package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "inkpost"

// Options selects the encoder and minimum level of the process logger
type Options struct {
	// Env "prod" gets JSON output, anything else a colored console
	Env string
	// Level overrides the env default (debug in dev, info in prod)
	Level string
}

func (o Options) level() (zap.AtomicLevel, error) {
	if o.Level == "" {
		if o.Env == "prod" {
			return zap.NewAtomicLevelAt(zap.InfoLevel), nil
		}
		return zap.NewAtomicLevelAt(zap.DebugLevel), nil
	}
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(o.Level)))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", o.Level, err)
	}
	return lvl, nil
}

func (o Options) config() (zap.Config, error) {
	lvl, err := o.level()
	if err != nil {
		return zap.Config{}, err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if o.Env == "prod" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.InitialFields = map[string]interface{}{"service": serviceName, "env": o.Env}
	return cfg, nil
}

// NewLogger builds the process logger described by opts
func NewLogger(opts Options) (*zap.Logger, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	return cfg.Build()
}

func NewSugar(opts Options) (*zap.SugaredLogger, error) {
	logger, err := NewLogger(opts)
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
