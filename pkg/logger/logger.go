package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger
var sugar *zap.SugaredLogger

// Init initializes the process-wide logger for the console.
// env "dev" produces coloured console output; any other value emits JSON.
func Init(service, env, level string) {
	var cfg zap.Config

	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.InitialFields = map[string]any{"service": service}

	built, err := cfg.Build(zap.AddCaller())
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	log = built
	sugar = built.Sugar()

	sugar.Infow("logger initialized",
		"env", env,
		"level", level,
	)
}

// L returns the structured logger handed to components by constructor.
func L() *zap.Logger {
	if log == nil {
		Init("greenhouse-console", "dev", "info")
	}
	return log
}

// S returns the sugared logger used by process wiring in main.
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init("greenhouse-console", "dev", "info")
	}
	return sugar
}

// Sync flushes buffered entries. Defer it in main.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
