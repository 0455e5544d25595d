package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

type requestIDKey struct{}

// Logger holds the zerolog logger instance
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new logger instance with the specified log level
func NewLogger(logLevel LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	level, err := zerolog.ParseLevel(string(logLevel))
	if err != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{
		logger: logger,
	}
}

// New creates a logger writing JSON or human-readable console output to stdout
func New(level LogLevel, format string) *Logger {
	if format == "console" {
		return NewLogger(level, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return NewLogger(level, os.Stdout)
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.logger
}

// WithContext adds request and trace fields from ctx to the logger
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logCtx := l.logger.With()

	if reqID := GetRequestID(ctx); reqID != "" {
		logCtx = logCtx.Str("req_id", reqID)
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		logCtx = logCtx.Str("trace_id", spanCtx.TraceID().String())
		logCtx = logCtx.Str("span_id", spanCtx.SpanID().String())
	}

	contextualLogger := logCtx.Logger()
	return &contextualLogger
}

// WithField adds a single field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msg(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message with the error attached
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// LogHTTPRequest logs HTTP request information
func (l *Logger) LogHTTPRequest(c *fiber.Ctx, duration time.Duration) {
	status := c.Response().StatusCode()

	event := l.logger.Info()
	if status >= fiber.StatusInternalServerError {
		event = l.logger.Error()
	} else if status >= fiber.StatusBadRequest {
		event = l.logger.Warn()
	}

	event.
		Str("req_id", GetRequestID(c.UserContext())).
		Str("ip", c.IP()).
		Str("method", c.Method()).
		Str("url", c.OriginalURL()).
		Int("status", status).
		Int64("duration_ms", duration.Milliseconds()).
		Str("user_agent", c.Get(fiber.HeaderUserAgent)).
		Msg("HTTP request processed")
}

// FiberLoggerMiddleware creates a Fiber-compatible logging middleware. It
// expects the requestid middleware to run first.
func (l *Logger) FiberLoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if reqID, ok := c.Locals("requestid").(string); ok && reqID != "" {
			c.SetUserContext(WithRequestID(c.UserContext(), reqID))
		}

		err := c.Next()
		if err != nil {
			// let the app error handler write the response before logging its status
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		l.LogHTTPRequest(c, time.Since(start))
		return nil
	}
}

// WithRequestID stores a request ID in ctx
func WithRequestID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, reqID)
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(requestIDKey{}).(string)
	return reqID
}
