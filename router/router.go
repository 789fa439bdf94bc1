package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/rpc-router-go/internal/logctx"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

// Envelope is the outer shape every request must satisfy. Params is nil when
// the request carried no params.
type Envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Request is what a handler receives: the router's shared context, the
// (validated, when a schema is declared) parameters and the envelope they came
// from.
type Request[C, P any] struct {
	Context         C
	Data            P
	OriginalRequest *Envelope
}

// Handler implements a method. It returns either a result, which is wrapped
// in a SuccessResponse unless it already is one, or an error. Returning an
// *ErrorResponse (possibly wrapped) fails the call with that exact response;
// any other error is reported to the caller as UNKNOWN_ERROR.
type Handler[C, P any] func(ctx context.Context, req *Request[C, P]) (any, error)

// invoker runs a handler with parameters that were already prepared.
type invoker[C any] func(ctx context.Context, c C) (any, error)

// Route is a registered method. Routes are immutable once added.
type Route[C any] struct {
	method string
	schema paramSchema
	// prepare validates the envelope's params and binds them to the handler.
	prepare func(env *Envelope) (invoker[C], []Issue)
}

// Method returns the name the route was registered under.
func (rt *Route[C]) Method() string { return rt.method }

// HasSchema reports whether the route declares a parameter schema.
func (rt *Route[C]) HasSchema() bool { return rt.schema != nil }

// Descriptor translates the route's parameter schema into a JSON Schema
// descriptor, or returns nil when the route declares none.
func (rt *Route[C]) Descriptor() *jsonschema.Schema {
	if rt.schema == nil {
		return nil
	}
	return rt.schema.Descriptor()
}

// CatalogEntry describes one registered method for external consumers.
type CatalogEntry struct {
	Method string             `json:"method"`
	Schema *jsonschema.Schema `json:"schema,omitempty"`
}

// Option configures a Router.
type Option func(*options)

type options struct {
	logger *slog.Logger
	newID  func() string
}

// WithLogger sets the logger used by the dispatch pipeline. If unset, logging
// is discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIDGenerator overrides how invocation IDs attached to log records are
// generated. The default is a random UUID.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// Router holds an ordered, append-only list of routes and the context value
// shared with every handler invocation.
type Router[C any] struct {
	mu     sync.RWMutex
	routes []*Route[C]

	context C
	log     *slog.Logger
	newID   func() string
}

// New constructs an empty Router bound to context.
func New[C any](context C, opts ...Option) *Router[C] {
	o := options{newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return &Router[C]{
		context: context,
		log:     logctx.Wrap(o.logger),
		newID:   o.newID,
	}
}

// Context returns the value shared with every handler.
func (r *Router[C]) Context() C { return r.context }

// AddRoute registers a method without a parameter schema. The handler
// receives the params exactly as supplied, or nil when they were absent.
//
// Method names are not checked for collisions; dispatch resolves to the first
// route registered under a name.
func (r *Router[C]) AddRoute(method string, h Handler[C, json.RawMessage]) {
	if h == nil {
		panic(fmt.Sprintf("router: nil handler for method %q", method))
	}
	r.add(&Route[C]{
		method: method,
		prepare: func(env *Envelope) (invoker[C], []Issue) {
			return func(ctx context.Context, c C) (any, error) {
				return h(ctx, &Request[C, json.RawMessage]{Context: c, Data: env.Params, OriginalRequest: env})
			}, nil
		},
	})
}

// AddTypedRoute registers a method whose params are validated against schema
// and decoded into P before h runs. A nil schema is derived from P with
// SchemaFor; failure to derive it, for instance because P is recursive,
// panics.
func AddTypedRoute[C, P any](r *Router[C], method string, schema *Schema[P], h Handler[C, P]) {
	if h == nil {
		panic(fmt.Sprintf("router: nil handler for method %q", method))
	}
	if schema == nil {
		schema = MustSchemaFor[P]()
	}
	r.add(&Route[C]{
		method: method,
		schema: schema,
		prepare: func(env *Envelope) (invoker[C], []Issue) {
			data, issues := schema.Parse(env.Params)
			if len(issues) > 0 {
				return nil, issues
			}
			return func(ctx context.Context, c C) (any, error) {
				return h(ctx, &Request[C, P]{Context: c, Data: data, OriginalRequest: env})
			}, nil
		},
	})
}

func (r *Router[C]) add(rt *Route[C]) {
	r.mu.Lock()
	r.routes = append(r.routes, rt)
	r.mu.Unlock()
}

// Routes returns a snapshot of the registered routes in insertion order.
func (r *Router[C]) Routes() []*Route[C] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Route[C], len(r.routes))
	copy(out, r.routes)
	return out
}

// Lookup returns the first route registered under method. Matching is exact
// and case-sensitive.
func (r *Router[C]) Lookup(method string) (*Route[C], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		if rt.method == method {
			return rt, true
		}
	}
	return nil, false
}

// JSONSchemaRoutes builds the catalog: one entry per route, in registration
// order. Descriptors are recomputed on every call.
func (r *Router[C]) JSONSchemaRoutes() []CatalogEntry {
	routes := r.Routes()
	out := make([]CatalogEntry, 0, len(routes))
	for _, rt := range routes {
		out = append(out, CatalogEntry{Method: rt.method, Schema: rt.Descriptor()})
	}
	return out
}
