package logger

import (
	"go.uber.org/zap/zapcore"
)

// DBCore is a custom Zap Core that intercepts logs
type DBCore struct {
	zapcore.Core
	writer *DBLogWriter
}

// NewDBCore wraps an existing core (like console logger) and adds DB logging
func NewDBCore(baseCore zapcore.Core, writer *DBLogWriter) zapcore.Core {
	return &DBCore{
		Core:   baseCore,
		writer: writer,
	}
}

// With keeps the DB writer on derived loggers (Named / With fields).
func (c *DBCore) With(fields []zapcore.Field) zapcore.Core {
	return &DBCore{
		Core:   c.Core.With(fields),
		writer: c.writer,
	}
}

// Write is called for every log entry
func (c *DBCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	var operationID string
	for _, f := range fields {
		if f.Key == "operation_id" && f.Type == zapcore.StringType {
			operationID = f.String
		}
	}

	// Zap must be configured with AddCaller() for the function name
	c.writer.AddLog(LogEntry{
		Level:       entry.Level,
		Message:     entry.Message,
		OperationID: operationID,
		Caller:      entry.Caller.Function,
	})

	return c.Core.Write(entry, fields)
}

// Check decides if we should log this level
func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
