package postgresdb

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// MultiQueryTracer fans tracer callbacks out to several tracers, since pgx
// accepts only one. See github.com/jackc/pgx/discussions/1677.
type MultiQueryTracer struct {
	Tracers []pgx.QueryTracer
}

func NewMultiQueryTracer(tracers ...pgx.QueryTracer) *MultiQueryTracer {
	return &MultiQueryTracer{Tracers: tracers}
}

func (m *MultiQueryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, t := range m.Tracers {
		ctx = t.TraceQueryStart(ctx, conn, data)
	}
	return ctx
}

func (m *MultiQueryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for _, t := range m.Tracers {
		t.TraceQueryEnd(ctx, conn, data)
	}
}

// LoggingQueryTracer logs each query with its SQL collapsed onto one line.
type LoggingQueryTracer struct {
	logger *slog.Logger
}

func NewLoggingQueryTracer(logger *slog.Logger) *LoggingQueryTracer {
	return &LoggingQueryTracer{logger: logger}
}

var (
	collapseTabs        = regexp.MustCompile(`\t+`)
	collapseBeforeOpen  = regexp.MustCompile(`\s+\(`)
	collapseAfterOpen   = regexp.MustCompile(`\(\s+`)
	collapseBeforeClose = regexp.MustCompile(`\s+\)`)
	collapseAfterClose  = regexp.MustCompile(`\)\s+`)
	collapseSpaces      = regexp.MustCompile(`\s+`)
)

// flattenSQL rewrites multi-line SQL into a single normalized line so log
// entries stay greppable.
func flattenSQL(sql string) string {
	flat := strings.Join(strings.Split(sql, "\n"), " ")
	flat = collapseTabs.ReplaceAllString(flat, "")
	flat = collapseBeforeOpen.ReplaceAllString(flat, "(")
	flat = collapseAfterOpen.ReplaceAllString(flat, "(")
	flat = collapseAfterClose.ReplaceAllString(flat, ")")
	flat = collapseBeforeClose.ReplaceAllString(flat, ")")
	flat = collapseSpaces.ReplaceAllString(flat, " ")
	return strings.TrimSpace(flat)
}

func (l *LoggingQueryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	l.logger.Info("query start",
		slog.String("sql", flattenSQL(data.SQL)),
		slog.Any("args", data.Args),
	)
	return ctx
}

func (l *LoggingQueryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err != nil {
		l.logger.Error("query end",
			slog.String("error", data.Err.Error()),
			slog.String("command_tag", data.CommandTag.String()),
		)
		return
	}

	l.logger.Info("query end",
		slog.String("command_tag", data.CommandTag.String()),
	)
}
