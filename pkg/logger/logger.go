package logger

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

// Logger is the logging facade injected into every component.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithComponent(name string) Logger
}

type Opts struct {
	Env       string
	SentryUrl string
}

type Impl struct {
	log *slog.Logger
}

var _ Logger = (*Impl)(nil)

// New builds a logger that fans out to a zerolog console writer and, when a
// DSN is configured, to Sentry for warning-and-above records.
func New(opts Opts) *Impl {
	level := slog.LevelDebug
	if opts.Env == "production" {
		level = slog.LevelInfo
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	handlers := []slog.Handler{
		slogzerolog.Option{Level: level, Logger: &zl}.NewZerologHandler(),
	}

	if opts.SentryUrl != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         opts.SentryUrl,
			Environment: opts.Env,
		}); err != nil {
			zl.Warn().Err(err).Msg("sentry init failed, continuing without it")
		} else {
			handlers = append(handlers, slogsentry.Option{Level: slog.LevelWarn}.NewSentryHandler())
		}
	}

	return &Impl{log: slog.New(slogmulti.Fanout(handlers...))}
}

func (i *Impl) Debug(msg string, args ...any) { i.log.Debug(msg, args...) }
func (i *Impl) Info(msg string, args ...any)  { i.log.Info(msg, args...) }
func (i *Impl) Warn(msg string, args ...any)  { i.log.Warn(msg, args...) }
func (i *Impl) Error(msg string, args ...any) { i.log.Error(msg, args...) }

func (i *Impl) WithComponent(name string) Logger {
	return &Impl{log: i.log.With("component", name)}
}

// Printf satisfies fx.Printer so the Impl can carry fx's own logging.
func (i *Impl) Printf(format string, args ...any) {
	i.log.Info(fmt.Sprintf(format, args...))
}
