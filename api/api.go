// Package api wires the Gate's HTTP surface: a handful of fixed
// administrative endpoints registered through Forge for OpenAPI metadata,
// and a catch-all fallback that hands every other inbound request to
// package dispatcher.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/forge"

	"github.com/relaymesh/gatework/dispatcher"
)

// fixedPrefixes lists the path prefixes served by the Forge-registered
// administrative routes. Anything else falls through to dispatch.
var fixedPrefixes = []string{"/health", "/routes", "/api/jobs", "/api/queue"}

// API assembles the Gate's HTTP handler.
type API struct {
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	router     forge.Router
}

// New creates an API from a Dispatcher. router may be nil, in which case
// a default Forge router is created.
func New(d *dispatcher.Dispatcher, logger *slog.Logger, router forge.Router) *API {
	return &API{dispatcher: d, logger: logger, router: router}
}

// Handler returns the fully assembled http.Handler: Forge-routed admin
// endpoints for everything under fixedPrefixes, falling back to the
// dynamic dispatch proxy for every other path.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	admin := a.router.Handler()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range fixedPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				admin.ServeHTTP(w, r)
				return
			}
		}
		a.dispatch(w, r)
	})
}

// RegisterRoutes registers the fixed administrative routes on router.
func (a *API) RegisterRoutes(router forge.Router) {
	a.registerHealthRoute(router)
	a.registerRouteListRoute(router)
	a.registerJobRoutes(router)
	a.registerQueueRoutes(router)
}

func (a *API) registerHealthRoute(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("health"))

	_ = g.GET("/health", a.health,
		forge.WithSummary("Health check"),
		forge.WithDescription("Reports whether the Gate can reach the shared store."),
		forge.WithOperationID("health"),
		forge.WithResponseSchema(http.StatusOK, "Health status", HealthResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerRouteListRoute(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("routes"))

	_ = g.GET("/routes", a.listRoutes,
		forge.WithSummary("List routes"),
		forge.WithDescription("Returns every registered (method, path, worker_version) route."),
		forge.WithOperationID("listRoutes"),
		forge.WithResponseSchema(http.StatusOK, "Route list", ListRoutesResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerJobRoutes(router forge.Router) {
	g := router.Group("/api", forge.WithGroupTags("jobs"))

	_ = g.GET("/jobs/:requestId", a.getJob,
		forge.WithSummary("Get job"),
		forge.WithDescription("Returns the current state of a dispatched job."),
		forge.WithOperationID("getJob"),
		forge.WithResponseSchema(http.StatusOK, "Job details", JobResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.DELETE("/jobs/:requestId", a.deleteJob,
		forge.WithSummary("Delete job"),
		forge.WithDescription("Removes a job record from the store unconditionally."),
		forge.WithOperationID("deleteJob"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerQueueRoutes(router forge.Router) {
	g := router.Group("/api", forge.WithGroupTags("queue"))

	_ = g.GET("/queue/size", a.queueSize,
		forge.WithSummary("Queue size"),
		forge.WithDescription("Returns the depth of a worker_version's queue."),
		forge.WithOperationID("queueSize"),
		forge.WithRequestSchema(QueueSizeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Queue size", QueueSizeResponse{}),
		forge.WithErrorResponses(),
	)
}
