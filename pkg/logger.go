package pkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output targets for console logging.
const (
	OutputStdout  = "stdout"
	OutputStderr  = "stderr"
	OutputDiscard = "discard"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Fields is a map of fields to add to log entries
type Fields map[string]any

var (
	instance *Logger
	mu       sync.RWMutex

	// zerolog globals are process wide; set them once to avoid data races
	// when several nodes share a process (tests, simulations).
	timeFormatOnce sync.Once
	stackOnce      sync.Once
)

// Logger wraps zerolog with additional functionality
type Logger struct {
	*zerolog.Logger
	config *Config
	closer io.Closer
}

// Config holds logger configuration
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error)
	Level string `json:"level"`

	// Format is the output format (json, console)
	Format string `json:"format"`

	// Output target (stdout, stderr, discard)
	Output string `json:"output"`

	// NoColor disables color in console format
	NoColor bool `json:"no_color"`

	// File output settings
	File FileConfig `json:"file"`

	// Fields are default fields added to all logs
	Fields Fields `json:"fields"`

	// EnableCaller adds caller information to logs
	EnableCaller bool `json:"enable_caller"`

	// AsyncWrite uses a diode writer so logging never blocks the node loop
	AsyncWrite bool `json:"async_write"`

	// BufferSize for async writer (in messages)
	BufferSize int `json:"buffer_size"`
}

// FileConfig for rotating file output
type FileConfig struct {
	// Enable file output
	Enable bool `json:"enable"`

	// Path to log file
	Path string `json:"path"`

	// MaxSize in megabytes
	MaxSize int `json:"max_size"`

	// MaxAge in days
	MaxAge int `json:"max_age"`

	// MaxBackups to keep
	MaxBackups int `json:"max_backups"`

	// Compress rotated files
	Compress bool `json:"compress"`
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatConsole,
		Output: OutputStdout,
		File: FileConfig{
			Enable:     false,
			Path:       "chordkv.log",
			MaxSize:    100, // 100MB
			MaxAge:     30,  // 30 days
			MaxBackups: 10,
			Compress:   true,
		},
		Fields:     make(Fields),
		BufferSize: 10000,
	}
}

// New creates a new logger instance
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	writers := []io.Writer{}

	switch config.Output {
	case OutputDiscard:
	case OutputStderr:
		writers = append(writers, consoleWriter(config, os.Stderr))
	default:
		writers = append(writers, consoleWriter(config, os.Stdout))
	}

	var closer io.Closer
	if config.File.Enable {
		if err := os.MkdirAll(filepath.Dir(config.File.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		fileWriter := &lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.File.MaxSize,
			MaxAge:     config.File.MaxAge,
			MaxBackups: config.File.MaxBackups,
			LocalTime:  true,
			Compress:   config.File.Compress,
		}
		writers = append(writers, fileWriter)
		closer = fileWriter
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	if config.AsyncWrite {
		dw := diode.NewWriter(writer, config.BufferSize, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "Logger dropped %d messages\n", missed)
		})
		writer = dw
		closer = multiCloser{dw, closer}
	}

	timeFormatOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
	})

	// pkg/errors values carry a stack; print it with %+v when .Stack() is used.
	stackOnce.Do(func() {
		zerolog.ErrorStackMarshaler = func(err error) any {
			return fmt.Sprintf("%+v", err)
		}
	})

	ctx := zerolog.New(writer).Level(level).With().Timestamp()
	if config.EnableCaller {
		ctx = ctx.Caller()
	}
	for k, v := range config.Fields {
		ctx = ctx.Interface(k, v)
	}

	zl := ctx.Logger()
	return &Logger{
		Logger: &zl,
		config: config,
		closer: closer,
	}, nil
}

func consoleWriter(config *Config, out io.Writer) io.Writer {
	if config.Format != FormatConsole {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05.000",
		NoColor:    config.NoColor,
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	zl := zerolog.Nop()
	return &Logger{Logger: &zl, config: &Config{Output: OutputDiscard}}
}

// SetGlobal sets the global logger instance
func SetGlobal(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	instance = l
}

// Get returns the global logger instance, a no-op logger if none was set.
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return NewNop()
	}
	return instance
}

// WithFields creates a child logger with additional fields
func (l *Logger) WithFields(fields Fields) *Logger {
	ctx := l.Logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}

	zl := ctx.Logger()
	return &Logger{
		Logger: &zl,
		config: l.config,
		closer: l.closer,
	}
}

// WithError creates a child logger with error details added
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields(Fields{
		"error":      err.Error(),
		"error_type": fmt.Sprintf("%T", err),
	})
}

// UpdateLevel updates the log level dynamically
func (l *Logger) UpdateLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	newLogger := l.Logger.Level(lvl)
	l.Logger = &newLogger
	l.config.Level = level
	return nil
}

// Close flushes async buffers and closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
