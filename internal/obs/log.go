package obs

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig selects level and output format of the shared logger.
type LogConfig struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or console
	Output io.Writer
}

var (
	logMu  sync.RWMutex
	logOut io.Writer = os.Stdout
	logCfg LogConfig
	logger zerolog.Logger
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger = build(LogConfig{}, logOut)
}

// ConfigureLogging rebuilds the shared logger. Safe to call more than once.
func ConfigureLogging(cfg LogConfig) {
	logMu.Lock()
	defer logMu.Unlock()
	if cfg.Output != nil {
		logOut = cfg.Output
	}
	logCfg = cfg
	logger = build(cfg, logOut)
}

// Logger returns the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	logMu.RLock()
	l := logger
	logMu.RUnlock()
	return &l
}

// SetOutput redirects the shared logger, keeping level and format, and returns a restore func.
func SetOutput(w io.Writer) (restore func()) {
	logMu.Lock()
	prev := logOut
	logOut = w
	logger = build(logCfg, w)
	logMu.Unlock()
	return func() {
		logMu.Lock()
		logOut = prev
		logger = build(logCfg, prev)
		logMu.Unlock()
	}
}

// Ctx returns the shared logger enriched with the request id carried by ctx.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if rid := RequestIDFromContext(ctx); rid != "" {
		enriched := l.With().Str("request_id", rid).Logger()
		return &enriched
	}
	return l
}

func build(cfg LogConfig, out io.Writer) zerolog.Logger {
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
