package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the RPC invocation and stream position
// carried in the context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(streamDataKey{}).(*StreamData); ok {
		r.AddAttrs(slog.Group("stream",
			slog.String("name", sd.Name),
			slog.Int("line", sd.Line),
		))
	}

	if msg, ok := ctx.Value(rpcMsg{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

// Wrap returns a logger whose handler is decorated by Handler. A nil logger
// yields one that discards everything.
func Wrap(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	if _, ok := l.Handler().(Handler); ok {
		return l
	}
	return slog.New(Handler{Handler: l.Handler()})
}

type rpcMsg struct{}

type RPCMessage struct {
	Method string
	ID     string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsg{}, msg)
}

// RPCMessageFrom returns the invocation stored in ctx, if any.
func RPCMessageFrom(ctx context.Context) (*RPCMessage, bool) {
	msg, ok := ctx.Value(rpcMsg{}).(*RPCMessage)
	return msg, ok
}

type streamDataKey struct{}

type StreamData struct {
	Name string
	Line int
}

func WithStreamData(ctx context.Context, data *StreamData) context.Context {
	return context.WithValue(ctx, streamDataKey{}, data)
}
