package gatework

import "context"

// Context is the execution context passed to Worker handlers. It is a
// plain alias for context.Context; the Worker cancels it on shutdown drain
// or when a handler's soft deadline (X-Job-Deadline) elapses.
type Context = context.Context
