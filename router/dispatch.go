package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ggoodman/rpc-router-go/internal/logctx"
	"github.com/ggoodman/rpc-router-go/internal/validation"
)

// envelopeValidator checks shape only: method must be a string and params,
// when present, may be anything. Other keys are ignored.
var envelopeValidator = validation.MustCompile(`{
	"type": "object",
	"properties": {
		"method": {"type": "string"},
		"params": {}
	},
	"required": ["method"]
}`)

// HandleRequest runs raw through r's dispatch pipeline. See
// (*Router).HandleRequest.
func HandleRequest[C any](ctx context.Context, r *Router[C], raw json.RawMessage) Response {
	return r.HandleRequest(ctx, raw)
}

// HandleRequest validates the envelope, looks up the method, validates its
// params, invokes the handler and normalizes the outcome. It never panics and
// never returns nil: every failure becomes an *ErrorResponse.
func (r *Router[C]) HandleRequest(ctx context.Context, raw json.RawMessage) Response {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{ID: r.newID()})

	if _, issues := envelopeValidator.Validate(raw); len(issues) > 0 {
		r.log.DebugContext(ctx, "rejected malformed request", slog.Int("issues", len(issues)))
		return invalidRequest(issues)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return invalidRequest([]Issue{{Code: validation.CodeDecodeFailed, Message: err.Error()}})
	}
	if msg, ok := logctx.RPCMessageFrom(ctx); ok {
		msg.Method = env.Method
	}

	return r.dispatch(ctx, &env)
}

// Call dispatches method with params marshaled to JSON. A nil params is sent
// as absent.
func (r *Router[C]) Call(ctx context.Context, method string, params any) Response {
	raw, err := json.Marshal(struct {
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{Method: method, Params: params})
	if err != nil {
		return invalidRequest([]Issue{{Code: validation.CodeInvalidJSON, Message: err.Error()}})
	}
	return r.HandleRequest(ctx, raw)
}

func (r *Router[C]) dispatch(ctx context.Context, env *Envelope) Response {
	route, ok := r.Lookup(env.Method)
	if !ok {
		r.log.DebugContext(ctx, "method not found")
		return methodNotFound()
	}

	call, issues := route.prepare(env)
	if len(issues) > 0 {
		r.log.DebugContext(ctx, "rejected invalid params", slog.Int("issues", len(issues)))
		return invalidParameter(issues)
	}

	res := r.invoke(ctx, call)
	r.log.DebugContext(ctx, "dispatched", slog.Bool("success", res.Succeeded()))
	return res
}

// invoke runs the handler and classifies its outcome. Fault details are
// logged but never returned.
func (r *Router[C]) invoke(ctx context.Context, call invoker[C]) (res Response) {
	defer func() {
		if p := recover(); p != nil {
			r.log.WarnContext(ctx, "handler panicked", slog.String("panic", fmt.Sprint(p)))
			res = unknownError()
		}
	}()

	v, err := call(ctx, r.context)
	if err != nil {
		var er *ErrorResponse
		if errors.As(err, &er) && er != nil {
			return er
		}
		r.log.WarnContext(ctx, "handler failed", slog.String("err", err.Error()))
		return unknownError()
	}

	switch v := v.(type) {
	case *SuccessResponse:
		if v == nil {
			return &SuccessResponse{}
		}
		return v
	case SuccessResponse:
		return &v
	}
	return &SuccessResponse{Response: v}
}
