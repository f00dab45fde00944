package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/CZERTAINLY/Vetter/internal/model"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler adds the attributes stored by ContextAttrs to every record
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, ok := ctx.Value(slogKey).([]slog.Attr)
	// copy, so sibling contexts never share the backing array
	ret := make([]slog.Attr, 0, len(a)+len(attrs))
	if ok {
		ret = append(ret, a...)
	}
	ret = append(ret, attrs...)
	return context.WithValue(ctx, slogKey, ret)
}

// New returns a JSON logger writing into w
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	ctxHandler := NewContextHandler(base)
	return slog.New(ctxHandler)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open creates the logger described by the service section of a configuration.
// Log is one of stderr, stdout, discard or a path of a file the logs are
// appended to. The returned io.Closer must be closed after the last message.
func Open(cfg model.Service) (*slog.Logger, io.Closer, error) {
	switch cfg.Log {
	case "", model.LogStderr:
		return New(os.Stderr, cfg.Verbose), nopCloser{}, nil
	case model.LogStdout:
		return New(os.Stdout, cfg.Verbose), nopCloser{}, nil
	case model.LogDiscard:
		return slog.New(slog.DiscardHandler), nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening log file: %w", model.ErrConfig, err)
	}
	return New(f, cfg.Verbose), f, nil
}
