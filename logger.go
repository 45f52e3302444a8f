package matsys

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/matsys/backend/halgpu"
	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/matsys/shadercache"
)

// nopHandler drops every record. Enabled reports false, so the producer
// goroutine never formats attributes for draw-rate log calls.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// loggerPtr is read by EndFrame and the shader watcher goroutine while
// SetLogger may replace it.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger routes the log output of the System and of the pushbuf,
// shadercache and backend/halgpu packages to l. Nil silences them again,
// which is the default. Safe to call while a System runs.
//
// Every message starts with the emitting package:
//   - [slog.LevelDebug]: worker start and stop ("pushbuf:"), file
//     directory loads, evictions and purges ("shadercache:"), buffer
//     creation and locks ("halgpu:"), System creation ("matsys:")
//   - [slog.LevelInfo]: async mode changes, Start, compiling a shader
//     from source, shader hot reloads
//   - [slog.LevelWarn]: a combo bound to the fallback shader (once per
//     lookup), compile retries, failed deferred locks, invalid shader
//     binds, a stopped push-buffer worker or shader watcher
//
// Example:
//
//	matsys.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)

	pushbuf.SetLogger(l)
	shadercache.SetLogger(l)
	halgpu.SetLogger(l)
}

// Logger returns the logger set by SetLogger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
