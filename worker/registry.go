package worker

import (
	"context"

	"github.com/relaymesh/gatework/httpjob"
)

// HandlerFunc executes the business logic matched to a job's (method, path)
// and returns the HTTP response to record on the job.
type HandlerFunc func(ctx context.Context, j *httpjob.HttpJob) (status int, headers map[string]string, body []byte, err error)

// Registry maps (method, path) pairs to the handler that serves them. A
// Worker process registers its routes at startup, then advertises each
// pair to the shared route registry under its worker_version.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler for the given method and path. Registering the
// same pair twice overwrites the previous handler.
func (r *Registry) Register(method, path string, h HandlerFunc) {
	r.handlers[key(method, path)] = h
}

// Get returns the handler for a (method, path) pair, if any.
func (r *Registry) Get(method, path string) (HandlerFunc, bool) {
	h, ok := r.handlers[key(method, path)]
	return h, ok
}

// Routes returns every registered (method, path) pair, for advertising to
// the route registry at startup.
func (r *Registry) Routes() []struct{ Method, Path string } {
	out := make([]struct{ Method, Path string }, 0, len(r.handlers))
	for k := range r.handlers {
		m, p := splitKey(k)
		out = append(out, struct{ Method, Path string }{m, p})
	}
	return out
}

func key(method, path string) string { return method + " " + path }

func splitKey(k string) (method, path string) {
	for i := 0; i < len(k); i++ {
		if k[i] == ' ' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}
