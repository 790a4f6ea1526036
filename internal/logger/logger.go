package logger

import (
	"os"

	"go-bulkops/internal/config"
	"go-bulkops/internal/database"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the console logger, tees a rotating file when LOG_FILE is set
// and forwards entries to Mongo when the Mongo store is active.
func NewLogger(cfg *config.Config, mongodb *database.MongodbDB) (*zap.Logger, error) {

	// 1. Setup Base Config (Console/JSON)
	var zapConfig zap.Config
	if cfg.IsProduction() {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Important: Enable Caller to get Function Name
	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	core := baseLogger.Core()

	// 2. Rotating file sink
	if cfg.LogFile != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(newRotatingFile(cfg.LogFile)),
			zapConfig.Level,
		)
		core = zapcore.NewTee(core, fileCore)
	}

	// 3. Async DB writer
	if mongodb.Enabled() {
		dbWriter := NewDBLogWriter(mongodb, cfg)
		core = NewDBCore(core, dbWriter)
	}

	return zap.New(core, zap.AddCaller()), nil
}

func newRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// NewCLILogger is a plain console logger for short-lived commands.
func NewCLILogger() *zap.Logger {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zap.InfoLevel,
	))
}
