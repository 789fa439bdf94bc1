package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/ggoodman/rpc-router-go/internal/logctx"
	"github.com/ggoodman/rpc-router-go/router"
)

const defaultMaxLineSize = 4 << 20

// Dispatcher handles one raw request envelope. *router.Router satisfies it.
type Dispatcher interface {
	HandleRequest(ctx context.Context, raw json.RawMessage) router.Response
}

// Handler is a single-connection line transport that reads request envelopes
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
type Handler struct {
	d       Dispatcher
	r       io.Reader
	w       io.Writer
	l       *slog.Logger
	name    string
	maxLine int

	served atomic.Bool
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(d Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		d:       d,
		r:       os.Stdin,
		w:       os.Stdout,
		name:    "stdio",
		maxLine: defaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.l = logctx.Wrap(h.l)
	return h
}

// Serve runs the read/dispatch/write loop until EOF on the reader or the
// context is canceled. It is safe to call at most once per Handler. EOF
// returns nil; cancellation returns the context's error.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.served.CompareAndSwap(false, true) {
		return fmt.Errorf("stdio: Serve called more than once")
	}

	// readLines exits once Serve returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go h.readLines(ctx, lines, readErr)

	enc := json.NewEncoder(h.w)
	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("stdio: read: %w", err)
				}
				h.l.DebugContext(ctx, "input closed", slog.Int("lines", lineNo))
				return nil
			}
			lineNo++
			lctx := logctx.WithStreamData(ctx, &logctx.StreamData{Name: h.name, Line: lineNo})
			res := h.d.HandleRequest(lctx, line)
			if err := enc.Encode(res); err != nil {
				h.l.ErrorContext(lctx, "failed to write response", slog.String("err", err.Error()))
				return fmt.Errorf("stdio: write: %w", err)
			}
		}
	}
}

// readLines feeds non-blank lines to out. It closes out when done and always
// leaves exactly one value on errc (nil on clean EOF).
func (h *Handler) readLines(ctx context.Context, out chan<- []byte, errc chan<- error) {
	defer close(out)

	sc := bufio.NewScanner(h.r)
	sc.Buffer(make([]byte, 0, min(64*1024, h.maxLine)), h.maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		line = append([]byte(nil), line...)
		select {
		case out <- line:
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}
	}
	errc <- sc.Err()
}
