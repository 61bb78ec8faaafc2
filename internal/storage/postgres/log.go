package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/tracelog"

	logpkg "github.com/webclinic017/pgjobq/pkg/log"
)

// pgxLogger adapts pkg/log to the pgx tracelog interface.
type pgxLogger struct {
	logger logpkg.Logger
}

func (l *pgxLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]logpkg.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, logpkg.F(k, v))
	}
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		l.logger.Debug(msg, fields...)
	case tracelog.LogLevelInfo:
		l.logger.Debug(msg, fields...) // per-statement noise stays at debug
	case tracelog.LogLevelWarn:
		l.logger.Warn(msg, fields...)
	default:
		l.logger.Error(msg, fields...)
	}
}
