package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

type testDeps struct {
	Prefix string
}

type pointParams struct {
	X float64 `json:"x"`
}

func newTestRouter(t *testing.T) *Router[testDeps] {
	t.Helper()
	r := New(testDeps{Prefix: "ctx:"})
	r.AddRoute("a", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return "a", nil
	})
	r.AddRoute("b", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return "b", nil
	})
	AddTypedRoute(r, "point", nil, func(ctx context.Context, req *Request[testDeps, pointParams]) (any, error) {
		return req.Data.X * 2, nil
	})
	return r
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func requireError(t *testing.T, res Response, code string) *ErrorResponse {
	t.Helper()
	er, ok := res.(*ErrorResponse)
	if !ok {
		t.Fatalf("expected error response %s, got %s", code, mustJSON(t, res))
	}
	if er.Type != code {
		t.Fatalf("got error type %q, want %q", er.Type, code)
	}
	return er
}

func requireSuccess(t *testing.T, res Response) *SuccessResponse {
	t.Helper()
	sr, ok := res.(*SuccessResponse)
	if !ok {
		t.Fatalf("expected success, got %s", mustJSON(t, res))
	}
	return sr
}

func TestHandleRequest_Totality(t *testing.T) {
	r := newTestRouter(t)
	r.AddRoute("boom", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		panic("boom")
	})

	inputs := []string{
		``,
		`null`,
		`42`,
		`"method"`,
		`[]`,
		`{`,
		`{}`,
		`{"method": 1}`,
		`{"method": null}`,
		`{"method": "a"}`,
		`{"method": "c"}`,
		`{"method": "point", "params": "nope"}`,
		`{"method": "point", "params": {"x": 2}}`,
		`{"method": "boom"}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			res := r.HandleRequest(context.Background(), json.RawMessage(in))
			if res == nil {
				t.Fatalf("nil response")
			}
			if IsSuccess(res) == IsError(res) {
				t.Fatalf("response must be exactly one variant: %T", res)
			}
			var decoded map[string]any
			if err := json.Unmarshal([]byte(mustJSON(t, res)), &decoded); err != nil {
				t.Fatalf("response did not encode: %v", err)
			}
			if decoded["success"] != res.Succeeded() {
				t.Fatalf("discriminant mismatch: %v", decoded)
			}
		})
	}
}

func TestHandleRequest_EnvelopePrecedence(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"missing method", `{"params": {"x": 1}}`},
		{"numeric method", `{"method": 5}`},
		{"array method", `{"method": ["a"]}`},
		{"not an object", `["a"]`},
		{"malformed json", `{"method": "a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			er := requireError(t, r.HandleRequest(context.Background(), json.RawMessage(tt.raw)), CodeInvalidRequest)
			issues, ok := er.AdditionalProperties.([]Issue)
			if !ok || len(issues) == 0 {
				t.Fatalf("expected non-empty issue list, got %#v", er.AdditionalProperties)
			}
		})
	}
}

func TestHandleRequest_IgnoresUnknownEnvelopeKeys(t *testing.T) {
	r := newTestRouter(t)
	res := r.HandleRequest(context.Background(), json.RawMessage(`{"method":"a","id":7,"extra":true}`))
	if got := requireSuccess(t, res).Response; got != "a" {
		t.Fatalf("got %v, want a", got)
	}
}

func TestHandleRequest_LookupExactness(t *testing.T) {
	r := newTestRouter(t)

	requireError(t, r.Call(context.Background(), "c", nil), CodeMethodNotFound)
	requireError(t, r.Call(context.Background(), "A", nil), CodeMethodNotFound)
	requireError(t, r.Call(context.Background(), "", nil), CodeMethodNotFound)

	er := requireError(t, r.Call(context.Background(), "c", nil), CodeMethodNotFound)
	if er.AdditionalProperties != nil {
		t.Fatalf("expected no additional properties, got %v", er.AdditionalProperties)
	}

	if got := requireSuccess(t, r.Call(context.Background(), "a", nil)).Response; got != "a" {
		t.Fatalf("got %v, want a", got)
	}
	if got := requireSuccess(t, r.Call(context.Background(), "b", nil)).Response; got != "b" {
		t.Fatalf("got %v, want b", got)
	}
}

func TestHandleRequest_DuplicateNamesResolveToFirst(t *testing.T) {
	r := New(testDeps{})
	r.AddRoute("dup", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return "first", nil
	})
	r.AddRoute("dup", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return "second", nil
	})
	if got := requireSuccess(t, r.Call(context.Background(), "dup", nil)).Response; got != "first" {
		t.Fatalf("got %v, want first", got)
	}
	if n := len(r.Routes()); n != 2 {
		t.Fatalf("expected both registrations to be kept, got %d", n)
	}
}

func TestHandleRequest_ParameterGate(t *testing.T) {
	r := newTestRouter(t)

	er := requireError(t, r.Call(context.Background(), "point", map[string]any{"x": "str"}), CodeInvalidParameter)
	issues, ok := er.AdditionalProperties.([]Issue)
	if !ok || len(issues) == 0 {
		t.Fatalf("expected non-empty issue list, got %#v", er.AdditionalProperties)
	}

	requireError(t, r.Call(context.Background(), "point", nil), CodeInvalidParameter)
	requireError(t, r.Call(context.Background(), "point", map[string]any{"x": 1, "y": 2}), CodeInvalidParameter)

	if got := requireSuccess(t, r.Call(context.Background(), "point", map[string]any{"x": 5})).Response; got != 10.0 {
		t.Fatalf("got %v, want 10", got)
	}
}

func TestHandleRequest_NoSchemaPassthrough(t *testing.T) {
	r := New(testDeps{Prefix: "p"})
	var got *Request[testDeps, json.RawMessage]
	r.AddRoute("raw", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		got = req
		return nil, nil
	})

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"absent", `{"method":"raw"}`, ""},
		{"null", `{"method":"raw","params":null}`, "null"},
		{"string", `{"method":"raw","params":"hi"}`, `"hi"`},
		{"nested", `{"method":"raw","params":{"a":[1,{"b":null}]}}`, `{"a":[1,{"b":null}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			requireSuccess(t, r.HandleRequest(context.Background(), json.RawMessage(tt.raw)))
			if got == nil {
				t.Fatalf("handler not invoked")
			}
			if string(got.Data) != tt.want {
				t.Errorf("got params %q, want %q", string(got.Data), tt.want)
			}
			if tt.want == "" && got.Data != nil {
				t.Errorf("expected nil params when absent")
			}
			if got.Context.Prefix != "p" {
				t.Errorf("handler did not receive router context")
			}
			if got.OriginalRequest == nil || got.OriginalRequest.Method != "raw" {
				t.Errorf("unexpected original request: %+v", got.OriginalRequest)
			}
		})
	}
}

func TestHandleRequest_SuccessWrapping(t *testing.T) {
	r := New(testDeps{})
	prebuilt := &SuccessResponse{Response: "prebuilt"}
	r.AddRoute("plain", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return map[string]int{"v": 1}, nil
	})
	r.AddRoute("wrapped", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return prebuilt, nil
	})
	r.AddRoute("wrapped-value", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return SuccessResponse{Response: "value"}, nil
	})
	r.AddRoute("nothing", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return nil, nil
	})

	if got := mustJSON(t, r.Call(context.Background(), "plain", nil)); got != `{"success":true,"response":{"v":1}}` {
		t.Errorf("plain: got %s", got)
	}
	if res := r.Call(context.Background(), "wrapped", nil); res != Response(prebuilt) {
		t.Errorf("wrapped: expected the handler's own response, got %s", mustJSON(t, res))
	}
	if got := mustJSON(t, r.Call(context.Background(), "wrapped-value", nil)); got != `{"success":true,"response":"value"}` {
		t.Errorf("wrapped-value: got %s", got)
	}
	if got := mustJSON(t, r.Call(context.Background(), "nothing", nil)); got != `{"success":true}` {
		t.Errorf("nothing: got %s", got)
	}
}

func TestHandleRequest_FaultNormalization(t *testing.T) {
	var logs bytes.Buffer
	r := New(testDeps{}, WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))

	domainErr := NewError("NOT_ALLOWED", map[string]string{"reason": "quota"})
	r.AddRoute("explicit", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return nil, domainErr
	})
	r.AddRoute("wrapped", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return nil, fmt.Errorf("checking quota: %w", domainErr)
	})
	r.AddRoute("returned", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return domainErr, nil
	})
	r.AddRoute("returned-value", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return *domainErr, nil
	})
	r.AddRoute("fault", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return nil, errors.New("db password is hunter2")
	})
	r.AddRoute("panic", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	})

	for _, method := range []string{"explicit", "wrapped"} {
		if res := r.Call(context.Background(), method, nil); res != Response(domainErr) {
			t.Errorf("%s: expected the exact error response, got %s", method, mustJSON(t, res))
		}
	}

	// Only a raised error fails the call; a returned one is an ordinary result.
	want := `{"success":true,"response":{"success":false,"type":"NOT_ALLOWED","additionalProperties":{"reason":"quota"}}}`
	if got := mustJSON(t, r.Call(context.Background(), "returned", nil)); got != want {
		t.Errorf("returned: got %s, want %s", got, want)
	}
	if got := mustJSON(t, r.Call(context.Background(), "returned-value", nil)); got != want {
		t.Errorf("returned-value: got %s, want %s", got, want)
	}

	for _, method := range []string{"fault", "panic"} {
		res := r.Call(context.Background(), method, nil)
		if got := mustJSON(t, res); got != `{"success":false,"type":"UNKNOWN_ERROR"}` {
			t.Errorf("%s: got %s", method, got)
		}
	}

	if !strings.Contains(logs.String(), "hunter2") {
		t.Errorf("expected fault detail to be logged, got %s", logs.String())
	}
	if !strings.Contains(logs.String(), "rpc.method=fault") {
		t.Errorf("expected log records to carry the method, got %s", logs.String())
	}
}

func TestHandleRequest_PackageFunctionAndIDs(t *testing.T) {
	var logs bytes.Buffer
	r := New(testDeps{},
		WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithIDGenerator(func() string { return "fixed-id" }),
	)
	r.AddRoute("a", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return 1, nil
	})
	res := HandleRequest(context.Background(), r, json.RawMessage(`{"method":"a"}`))
	requireSuccess(t, res)
	if !strings.Contains(logs.String(), "rpc.id=fixed-id") {
		t.Errorf("expected invocation id in logs, got %s", logs.String())
	}
}

func TestCall_UnmarshalableParams(t *testing.T) {
	r := newTestRouter(t)
	requireError(t, r.Call(context.Background(), "a", make(chan int)), CodeInvalidRequest)
}

func TestHandleRequest_HandlerSeesCallerContext(t *testing.T) {
	type key struct{}
	r := New(testDeps{})
	r.AddRoute("ctx", func(ctx context.Context, req *Request[testDeps, json.RawMessage]) (any, error) {
		return ctx.Value(key{}), nil
	})
	ctx := context.WithValue(context.Background(), key{}, "value")
	if got := requireSuccess(t, r.Call(ctx, "ctx", nil)).Response; got != "value" {
		t.Fatalf("got %v, want value", got)
	}
}
