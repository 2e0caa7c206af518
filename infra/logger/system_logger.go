package logger

import (
	"context"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// ParseLevel maps a config string to a level, defaulting to info
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	case LevelFatal:
		return LevelFatal
	default:
		return LevelInfo
	}
}

// SystemLog represents a structured system log entry
type SystemLog struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Component   string         `json:"component"`
	Function    string         `json:"function"`
	File        string         `json:"file"`
	Line        int            `json:"line"`
	TenantID    string         `json:"tenant_id,omitempty"`
	Gateway     string         `json:"gateway,omitempty"`
	PaymentID   string         `json:"payment_id,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Environment string         `json:"environment"`
	Service     string         `json:"service"`
	Version     string         `json:"version"`
}

// Shipper receives log entries for remote storage
type Shipper interface {
	LogSystemEvent(ctx context.Context, entry any) error
}

// SystemLogger writes structured logs to the console through logrus and
// optionally ships them to a remote store
type SystemLogger struct {
	shipper     Shipper
	console     *logrus.Logger
	enableShip  bool
	minLevel    LogLevel
	service     string
	version     string
	environment string
	exit        func(int)
}

// SystemLoggerConfig represents configuration for system logger
type SystemLoggerConfig struct {
	EnableConsole    bool      `yaml:"enable_console"`
	EnableOpenSearch bool      `yaml:"enable_opensearch"`
	MinLevel         LogLevel  `yaml:"min_level"`
	Service          string    `yaml:"service"`
	Version          string    `yaml:"version"`
	Environment      string    `yaml:"environment"`
	Output           io.Writer `yaml:"-"`
}

// NewSystemLogger creates a new system logger
func NewSystemLogger(shipper Shipper, config SystemLoggerConfig) *SystemLogger {
	console := logrus.New()
	console.SetLevel(logrus.TraceLevel)
	switch {
	case !config.EnableConsole:
		console.SetOutput(io.Discard)
	case config.Output != nil:
		console.SetOutput(config.Output)
	default:
		console.SetOutput(os.Stdout)
	}
	if config.Environment == "production" {
		console.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		console.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	return &SystemLogger{
		shipper:     shipper,
		console:     console,
		enableShip:  config.EnableOpenSearch && shipper != nil,
		minLevel:    config.MinLevel,
		service:     config.Service,
		version:     config.Version,
		environment: config.Environment,
		exit:        os.Exit,
	}
}

// LogContext holds contextual information for logging
type LogContext struct {
	TenantID  string
	Gateway   string
	PaymentID string
	RequestID string
	Fields    map[string]any
}

// Debug logs a debug message
func (sl *SystemLogger) Debug(message string, ctx ...LogContext) {
	sl.log(LevelDebug, message, nil, ctx...)
}

// Info logs an info message
func (sl *SystemLogger) Info(message string, ctx ...LogContext) {
	sl.log(LevelInfo, message, nil, ctx...)
}

// Warn logs a warning message
func (sl *SystemLogger) Warn(message string, ctx ...LogContext) {
	sl.log(LevelWarn, message, nil, ctx...)
}

// Error logs an error message
func (sl *SystemLogger) Error(message string, err error, ctx ...LogContext) {
	sl.log(LevelError, message, err, ctx...)
}

// Fatal logs a fatal message and exits
func (sl *SystemLogger) Fatal(message string, err error, ctx ...LogContext) {
	sl.log(LevelFatal, message, err, ctx...)
	sl.exit(1)
}

func (sl *SystemLogger) log(level LogLevel, message string, err error, ctx ...LogContext) {
	if !sl.shouldLog(level) {
		return
	}

	file, line, function := callerFrame()

	entry := SystemLog{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Component:   sl.extractComponent(file),
		Function:    function,
		File:        file,
		Line:        line,
		Environment: sl.environment,
		Service:     sl.service,
		Version:     sl.version,
	}

	if len(ctx) > 0 {
		logCtx := ctx[0]
		entry.TenantID = logCtx.TenantID
		entry.Gateway = logCtx.Gateway
		entry.PaymentID = logCtx.PaymentID
		entry.RequestID = logCtx.RequestID
		entry.Fields = logCtx.Fields
	}
	if err != nil {
		entry.Error = err.Error()
	}

	sl.logToConsole(entry)

	if sl.enableShip {
		go sl.ship(entry)
	}
}

// callerFrame returns the first stack frame outside this package
func callerFrame() (string, int, string) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "/infra/logger.") {
			function := frame.Function
			if idx := strings.LastIndex(function, "."); idx != -1 {
				function = function[idx+1:]
			}
			return frame.File, frame.Line, function
		}
		if !more {
			return "unknown", 0, "unknown"
		}
	}
}

var levelOrder = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

func (sl *SystemLogger) shouldLog(level LogLevel) bool {
	return levelOrder[level] >= levelOrder[sl.minLevel]
}

// extractComponent turns a source path into a component name, e.g.
// /src/academypay/provider/easykash/easykash.go -> provider/easykash
func (sl *SystemLogger) extractComponent(file string) string {
	parts := strings.Split(file, "/")

	for i, part := range parts {
		if part == "academypay" && i+1 < len(parts)-1 {
			if i+2 < len(parts)-1 {
				return parts[i+1] + "/" + parts[i+2]
			}
			return parts[i+1]
		}
	}

	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}

	return "unknown"
}

func (sl *SystemLogger) logToConsole(entry SystemLog) {
	fields := logrus.Fields{"component": entry.Component}
	if entry.TenantID != "" {
		fields["tenant_id"] = entry.TenantID
	}
	if entry.Gateway != "" {
		fields["gateway"] = entry.Gateway
	}
	if entry.PaymentID != "" {
		fields["payment_id"] = entry.PaymentID
	}
	if entry.RequestID != "" {
		fields["request_id"] = entry.RequestID
	}
	if entry.Error != "" {
		fields[logrus.ErrorKey] = entry.Error
	}
	for k, v := range entry.Fields {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}

	e := sl.console.WithFields(fields).WithTime(entry.Timestamp)
	switch entry.Level {
	case LevelDebug:
		e.Debug(entry.Message)
	case LevelWarn:
		e.Warn(entry.Message)
	case LevelError, LevelFatal:
		e.Error(entry.Message)
	default:
		e.Info(entry.Message)
	}
}

func (sl *SystemLogger) ship(entry SystemLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sl.shipper.LogSystemEvent(ctx, entry); err != nil {
		sl.console.WithError(err).Warn("failed to ship log entry")
	}
}

// WithContext creates a new logger with context
func (sl *SystemLogger) WithContext(ctx LogContext) *ContextLogger {
	return &ContextLogger{
		systemLogger: sl,
		context:      ctx,
	}
}

// ContextLogger wraps SystemLogger with context
type ContextLogger struct {
	systemLogger *SystemLogger
	context      LogContext
}

func (cl *ContextLogger) Debug(message string) {
	cl.systemLogger.log(LevelDebug, message, nil, cl.context)
}

func (cl *ContextLogger) Info(message string) {
	cl.systemLogger.log(LevelInfo, message, nil, cl.context)
}

func (cl *ContextLogger) Warn(message string) {
	cl.systemLogger.log(LevelWarn, message, nil, cl.context)
}

func (cl *ContextLogger) Error(message string, err error) {
	cl.systemLogger.log(LevelError, message, err, cl.context)
}

func (cl *ContextLogger) Fatal(message string, err error) {
	cl.systemLogger.log(LevelFatal, message, err, cl.context)
	cl.systemLogger.exit(1)
}

// AddField adds a field to the context
func (cl *ContextLogger) AddField(key string, value any) *ContextLogger {
	fields := make(map[string]any, len(cl.context.Fields)+1)
	for k, v := range cl.context.Fields {
		fields[k] = v
	}
	fields[key] = value
	cl.context.Fields = fields
	return cl
}

func (cl *ContextLogger) SetTenantID(tenantID string) *ContextLogger {
	cl.context.TenantID = tenantID
	return cl
}

func (cl *ContextLogger) SetGateway(gateway string) *ContextLogger {
	cl.context.Gateway = gateway
	return cl
}

func (cl *ContextLogger) SetPaymentID(paymentID string) *ContextLogger {
	cl.context.PaymentID = paymentID
	return cl
}

func (cl *ContextLogger) SetRequestID(requestID string) *ContextLogger {
	cl.context.RequestID = requestID
	return cl
}
