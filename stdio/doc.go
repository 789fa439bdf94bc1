// Package stdio drives a router over a newline-delimited stream, by default
// stdin/stdout. It is intended for embedding a router as a subprocess, local
// development and scripted testing.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Framing          : one JSON request envelope per line in, one response per line out
//	Ordering         : lines are dispatched sequentially; responses follow input order
//	Blank lines      : skipped
//
// Options allow supplying alternate io.Reader / io.Writer or a custom logger.
//
// Example:
//
//	r := router.New(deps)
//	// r.AddRoute(...), router.AddTypedRoute(r, ...), etc.
//	h := stdio.NewHandler(r)
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
package stdio
