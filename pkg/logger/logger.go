package logger

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/config"
)

// New creates a new logger instance
func New(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		logger.SetFormatter(&CustomTextFormatter{
			TextFormatter: logrus.TextFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
				FullTimestamp:   true,
			},
		})
	}

	output, err := getOutput(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to set output: %w", err)
	}
	logger.SetOutput(output)

	// Caller info is only worth its cost when debugging
	logger.SetReportCaller(level >= logrus.DebugLevel)

	return logger, nil
}

// Discard returns a logger that writes nothing, for tests and library callers
// that do not care about logs
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// CustomTextFormatter is a custom text formatter for logrus
type CustomTextFormatter struct {
	logrus.TextFormatter
}

// Format renders a single log entry
func (f *CustomTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	levelColor := getColorByLevel(entry.Level)

	caller := ""
	if entry.HasCaller() {
		caller = fmt.Sprintf(" [%s]", formatCaller(entry.Caller))
	}

	timestamp := entry.Time.Format(f.TimestampFormat)

	var fields strings.Builder
	if len(entry.Data) > 0 {
		fields.WriteString(" |")
		for k, v := range entry.Data {
			fmt.Fprintf(&fields, " %s=%v", k, v)
		}
	}

	logLine := fmt.Sprintf("%s%s %s%s%s %s%s %s%s\n",
		"\033[90m", timestamp, "\033[0m", // gray timestamp
		levelColor, strings.ToUpper(entry.Level.String()), "\033[0m",
		caller,
		entry.Message,
		fields.String(),
	)

	return []byte(logLine), nil
}

// getColorByLevel returns ANSI color code for log level
func getColorByLevel(level logrus.Level) string {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "\033[36m"
	case logrus.InfoLevel:
		return "\033[32m"
	case logrus.WarnLevel:
		return "\033[33m"
	case logrus.ErrorLevel:
		return "\033[31m"
	case logrus.FatalLevel, logrus.PanicLevel:
		return "\033[35m"
	default:
		return "\033[0m"
	}
}

// formatCaller formats the caller information
func formatCaller(caller *runtime.Frame) string {
	_, file := filepath.Split(caller.File)

	funcName := caller.Function
	if idx := strings.LastIndex(funcName, "."); idx >= 0 {
		funcName = funcName[idx+1:]
	}

	return fmt.Sprintf("%s:%d %s", file, caller.Line, funcName)
}

// getOutput returns the appropriate output writer
func getOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		return file, nil
	}
}

// WithComponent creates a logger with component field
func WithComponent(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// Fields is a type alias for logrus.Fields
type Fields = logrus.Fields

// Transport returns an http.RoundTripper that logs every outbound request at
// debug level. Authorization headers are never logged.
func Transport(logger *logrus.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, logger: WithComponent(logger, "http")}
}

type loggingTransport struct {
	next   http.RoundTripper
	logger *logrus.Entry
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	entry := t.logger.WithFields(logrus.Fields{
		"method":     req.Method,
		"host":       req.URL.Host,
		"path":       req.URL.Path,
		"request_id": req.Header.Get("X-Request-ID"),
		"duration":   time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Debug("HTTP request failed")
		return nil, err
	}
	entry.WithField("status", resp.StatusCode).Debug("HTTP request")
	return resp, nil
}

// Middleware returns a logging middleware for HTTP handlers
func Middleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     wrapped.statusCode,
				"duration":   time.Since(start).Milliseconds(),
				"ip":         r.RemoteAddr,
				"request_id": r.Header.Get("X-Request-ID"),
			}).Info("HTTP request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
