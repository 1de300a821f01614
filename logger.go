// logger.go
package kite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LogMode selects the Logger middleware's rendering: Prod for structured
// JSON, Dev for a human-readable colorized line, Auto for JSON unless
// Output is an interactive terminal.
type LogMode int

const (
	Auto LogMode = iota
	Prod
	Dev
)

// TraceExtractor pulls a trace id/span id pair (and whether the trace was
// sampled) out of a request context, e.g. from an OpenTelemetry span.
type TraceExtractor func(ctx context.Context) (traceID, spanID string, sampled bool)

// LoggerOptions configures the Logger middleware.
type LoggerOptions struct {
	// Logger, if set, receives structured log records directly and Output
	// is ignored.
	Logger *slog.Logger

	Mode   LogMode
	Output io.Writer // defaults to os.Stderr
	Color  bool      // force color in Dev mode regardless of terminal detection

	UserAgent       bool
	RequestIDHeader string // defaults to "X-Request-Id"
	RequestIDGen    func() string

	TraceExtractor TraceExtractor
}

// Logger returns request-logging middleware: one structured line per
// request carrying method, path, query, status, duration, and (when
// available) request id and trace context.
func Logger(opts LoggerOptions) Middleware {
	if opts.RequestIDHeader == "" {
		opts.RequestIDHeader = "X-Request-Id"
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.RequestIDGen == nil {
		opts.RequestIDGen = func() string { return uuid.NewString() }
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(newLoggerHandler(opts))
	}

	return func(next Handler) Handler {
		return func(c *Ctx) error {
			start := time.Now()

			reqID := c.Request().Header.Get(opts.RequestIDHeader)
			if reqID == "" {
				reqID = opts.RequestIDGen()
			}
			c.Header().Set(opts.RequestIDHeader, reqID)

			err := next(c)

			attrs := []slog.Attr{
				slog.Int("status", c.StatusCode()),
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.String("host", c.Request().Host),
				slog.String("query", c.Request().URL.RawQuery),
				slog.Duration("duration_ms", time.Since(start)),
				slog.String("request_id", reqID),
			}
			if opts.UserAgent {
				attrs = append(attrs, slog.String("user_agent", c.Request().Header.Get("User-Agent")))
			}
			if opts.TraceExtractor != nil {
				if traceID, spanID, sampled := opts.TraceExtractor(c.Context()); traceID != "" {
					attrs = append(attrs,
						slog.String("trace_id", traceID),
						slog.String("span_id", spanID),
						slog.Bool("trace_sampled", sampled),
					)
				}
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			if opts.Mode == Dev || (opts.Mode == Auto && isTerminal(opts.Output)) {
				attrs = append(attrs, slog.String("latency_human", humanDuration(time.Since(start))))
			}

			level := levelFor(c.StatusCode(), err)
			log.LogAttrs(c.Context(), level, "request", attrs...)

			return err
		}
	}
}

func levelFor(status int, err error) slog.Level {
	switch {
	case err != nil, status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func newLoggerHandler(opts LoggerOptions) slog.Handler {
	h := &slog.HandlerOptions{Level: slog.LevelDebug}
	switch {
	case opts.Mode == Dev, opts.Mode == Auto && isTerminal(opts.Output):
		if opts.Color || supportsColorEnv() {
			return newColorTextHandler(opts.Output, h)
		}
		return slog.NewTextHandler(opts.Output, h)
	default:
		return slog.NewJSONHandler(opts.Output, h)
	}
}

// humanDuration renders d with a unit chosen for readability: ns, µs, ms
// or s, matching how Dev-mode log lines are meant to be skimmed.
func humanDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return strconv.FormatInt(d.Nanoseconds(), 10) + "ns"
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// attrInt extracts an integer value out of a slog.Attr regardless of
// which numeric Kind it was constructed with.
func attrInt(a slog.Attr) (int64, bool) {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	default:
		return 0, false
	}
}

func supportsColorEnv() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	term := os.Getenv("TERM")
	if term == "" || term == "dumb" {
		return false
	}
	return runtime.GOOS != "windows"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// colorTextHandler is a minimal slog.Handler that renders key=value
// pairs with ANSI coloring by level and by a recognized "status" field,
// used for Dev-mode console output.
type colorTextHandler struct {
	w     io.Writer
	opts  *slog.HandlerOptions
	attrs []slog.Attr
	group string
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *colorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &colorTextHandler{w: w, opts: opts}
}

func (h *colorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *colorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(colorForLevel(r.Level))
	b.WriteString(r.Message)
	b.WriteString(ansiReset)

	for _, a := range h.attrs {
		writeColorAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeColorAttr(&b, a)
		return true
	})
	b.WriteString("\n")
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &colorTextHandler{w: h.w, opts: h.opts, group: h.group}
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return next
}

func (h *colorTextHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.group = name
	return &next
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiGreen  = "\x1b[32m"
	ansiCyan   = "\x1b[36m"
)

func colorForLevel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return ansiRed
	case l >= slog.LevelWarn:
		return ansiYellow
	default:
		return ansiGreen
	}
}

func writeColorAttr(b *strings.Builder, a slog.Attr) {
	b.WriteString(" ")
	color := ansiCyan
	if a.Key == "status" {
		if n, ok := attrInt(a); ok && n >= 400 {
			color = ansiRed
		}
	}
	b.WriteString(color)
	b.WriteString(a.Key)
	b.WriteString("=")
	b.WriteString(a.Value.String())
	b.WriteString(ansiReset)
}
