package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dvloznov/contract-tracker/internal/logger"
)

// queryLogger routes gorm's query log into zerolog. The logger in the query's
// context wins over the one captured at Open, so bank_id and request_id fields
// end up on the query lines.
type queryLogger struct {
	base      zerolog.Logger
	level     gormlogger.LogLevel
	slowQuery time.Duration
}

func newQueryLogger(base zerolog.Logger, slowQuery time.Duration) *queryLogger {
	return &queryLogger{base: base, level: gormlogger.Warn, slowQuery: slowQuery}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *queryLogger) from(ctx context.Context) *zerolog.Logger {
	if log, ok := ctx.Value(logger.LoggerKey).(zerolog.Logger); ok {
		return &log
	}
	return &l.base
}

func (l *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.from(ctx).Info().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.from(ctx).Warn().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.from(ctx).Error().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	log := l.from(ctx)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		query, rows := fc()
		log.Error().Err(err).Str("sql", query).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query failed")
	case l.slowQuery > 0 && elapsed > l.slowQuery && l.level >= gormlogger.Warn:
		query, rows := fc()
		log.Warn().Str("sql", query).Int64("rows", rows).Dur("elapsed", elapsed).Msg("slow query")
	case l.level >= gormlogger.Info:
		query, rows := fc()
		log.Debug().Str("sql", query).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query")
	}
}
