// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package commons

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rapidaai/voice-gateway/pkg/utils"
)

// ============================================================================
// Application logger
// ============================================================================

// Logger is the logging surface shared by every component. It is a thin
// wrapper over zap's sugared logger plus a benchmark helper for latency
// measurements around provider calls.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Benchmark(name string, elapsed time.Duration)
	Sync() error
}

type loggerSettings struct {
	name  string
	path  string
	level string
}

// LoggerOption overrides one logger setting.
type LoggerOption func(*loggerSettings)

// Name sets the logger name, used as the zap name and the log file basename.
func Name(name string) LoggerOption {
	return func(s *loggerSettings) { s.name = name }
}

// Path sets the directory rotated log files are written to. Empty means
// stdout only.
func Path(path string) LoggerOption {
	return func(s *loggerSettings) { s.path = path }
}

// Level sets the minimum level ("debug", "info", "warn", "error").
func Level(level string) LoggerOption {
	return func(s *loggerSettings) { s.level = level }
}

type applicationLogger struct {
	*zap.SugaredLogger
}

func (l *applicationLogger) Benchmark(name string, elapsed time.Duration) {
	l.Infow("benchmark", "name", name, "elapsed", elapsed.String())
}

// NewApplicationLogger builds the process logger. Settings default from the
// environment (ENVIRONMENT, LOGGING__NAME, LOGGING__DIRECTORY, LOGGING__LEVEL)
// and can be overridden per call, which tests use to write to a temp dir.
func NewApplicationLogger(opts ...LoggerOption) (Logger, error) {
	env := utils.FromEnvironmentStr(os.Getenv("ENVIRONMENT"))

	settings := &loggerSettings{
		name:  envOr("LOGGING__NAME", "voice-gateway"),
		path:  os.Getenv("LOGGING__DIRECTORY"),
		level: envOr("LOGGING__LEVEL", defaultLevel(env)),
	}
	for _, opt := range opts {
		opt(settings)
	}

	level, err := zapcore.ParseLevel(settings.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", settings.level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if env.IsProduction() {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if settings.path != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(settings.path, settings.name+".log"),
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     28,
			Compress:   true,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	base := zap.New(core, zap.AddCaller()).Named(settings.name)
	return &applicationLogger{SugaredLogger: base.Sugar()}, nil
}

func defaultLevel(env utils.RapidaEnvironment) string {
	if env.IsProduction() {
		return "info"
	}
	return "debug"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
