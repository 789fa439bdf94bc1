// Package router provides a minimal RPC-style method dispatcher.
//
// A Router holds an ordered list of methods, each bound to a handler and an
// optional parameter schema, plus a context value shared with every handler.
// Requests are JSON envelopes of the form {"method": "...", "params": ...}.
//
// Quick start:
//
//	type Deps struct{ Store *Store }
//
//	r := router.New(Deps{Store: store})
//
//	type AddParams struct {
//	    A float64 `json:"a"`
//	    B float64 `json:"b"`
//	}
//	router.AddTypedRoute(r, "math.add", nil, func(ctx context.Context, req *router.Request[Deps, AddParams]) (any, error) {
//	    return req.Data.A + req.Data.B, nil
//	})
//
//	r.AddRoute("ping", func(ctx context.Context, req *router.Request[Deps, json.RawMessage]) (any, error) {
//	    return "pong", nil
//	})
//
//	res := r.HandleRequest(ctx, []byte(`{"method":"math.add","params":{"a":1,"b":2}}`))
//	// res encodes as {"success":true,"response":3}
//
// # Pipeline
//
// HandleRequest runs four gates in order and stops at the first failure:
//
//  1. Envelope: method must be a string. Failure: INVALID_REQUEST with the
//     list of issues as additionalProperties.
//  2. Lookup: the first route registered under method. Failure:
//     METHOD_NOT_FOUND.
//  3. Params: when the route declares a schema, params must satisfy it.
//     Failure: INVALID_PARAMETER with the list of issues. Routes without a
//     schema receive params untouched.
//  4. Invoke: the handler's result is wrapped in a SuccessResponse unless it
//     already is one, including an *ErrorResponse returned as a value. An
//     *ErrorResponse returned as the error, possibly wrapped, is passed
//     through as-is. Any other error or panic becomes UNKNOWN_ERROR with no
//     detail.
//
// # Catalog
//
// JSONSchemaRoutes lists every method with its JSON Schema descriptor, in
// registration order, for documentation generators and client codegen. See
// package catalog for encoding and publishing it.
package router
