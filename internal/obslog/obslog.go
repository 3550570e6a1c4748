package obslog

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultLogFile = "logs/arena.log"

// Output encodings.
const (
	FormatLegacy  = "legacy" // "2006-01-02 15:04:05 | INFO | caller | msg | {fields}"
	FormatJSON    = "json"
	FormatConsole = "console"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop()
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	closer = func() error { return nil }
)

// Options selects sinks and encoding.
type Options struct {
	Level   string
	Format  string
	Console bool
	File    bool
	Path    string
	Caller  bool
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_TO_CONSOLE, LOG_TO_FILE, LOG_FILE and LOG_CALLER.
func OptionsFromEnv() Options {
	path := strings.TrimSpace(os.Getenv("LOG_FILE"))
	if path == "" {
		path = DefaultLogFile
	}
	return Options{
		Level:   envOr("LOG_LEVEL", "info"),
		Format:  envOr("LOG_FORMAT", FormatLegacy),
		Console: envBool("LOG_TO_CONSOLE", true),
		File:    envBool("LOG_TO_FILE", true),
		Path:    path,
		Caller:  envBool("LOG_CALLER", false),
	}
}

// L returns the process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Named(name string) *zap.Logger { return L().Named(name) }

func InitFromEnv() error { return Init(OptionsFromEnv()) }

// Init replaces the process logger. Its level stays adjustable through LevelHandler.
func Init(opts Options) error {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	logger, closeFn, err := build(opts, level)
	if err != nil {
		return err
	}
	mu.Lock()
	prev := closer
	global, closer = logger, closeFn
	mu.Unlock()
	return prev()
}

// Close flushes the process logger and releases its log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	_ = global.Sync()
	err := closer()
	global, closer = zap.NewNop(), func() error { return nil }
	return err
}

// LevelHandler serves GET/PUT of the process log level as JSON ({"level":"debug"}).
func LevelHandler() http.Handler { return level }

// Build returns a standalone logger and a function that closes its file sink.
func Build(opts Options) (*zap.Logger, func() error, error) {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	return build(opts, zap.NewAtomicLevelAt(lvl))
}

func build(opts Options, lvl zap.AtomicLevel) (*zap.Logger, func() error, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	switch format {
	case FormatLegacy, FormatJSON, FormatConsole:
	default:
		format = FormatLegacy
	}
	enc := encoderConfig(format)
	newEncoder := func() zapcore.Encoder {
		if format == FormatJSON {
			return zapcore.NewJSONEncoder(enc)
		}
		return zapcore.NewConsoleEncoder(enc)
	}

	var (
		cores   []zapcore.Core
		closeFn = func() error { return nil }
	)
	if opts.File {
		path := strings.TrimSpace(opts.Path)
		if path == "" {
			path = DefaultLogFile
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.AddSync(f), lvl))
		closeFn = f.Close
	}
	if opts.Console || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stdout), lvl))
	}

	zopts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.Caller || format == FormatLegacy {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), zopts...), closeFn, nil
}

func encoderConfig(format string) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	switch format {
	case FormatJSON:
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	case FormatConsole:
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.ConsoleSeparator = " | "
	}
	return cfg
}

func parseLevel(s string) (zapcore.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return b
}
