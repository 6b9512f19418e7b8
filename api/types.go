package api

import "github.com/relaymesh/gatework/route"

// HealthRequest carries no fields.
type HealthRequest struct{}

// HealthResponse reports store connectivity.
type HealthResponse struct {
	Status string `json:"status"`
}

// ListRoutesRequest carries no fields.
type ListRoutesRequest struct{}

// ListRoutesResponse wraps every registered route.
type ListRoutesResponse struct {
	Routes []route.Route `json:"routes"`
}

// GetJobRequest carries no fields; request_id is read from the path.
type GetJobRequest struct{}

// DeleteJobRequest carries no fields; request_id is read from the path.
type DeleteJobRequest struct{}

// JobResponse is the wire shape returned for a job lookup.
type JobResponse struct {
	RequestID       string            `json:"request_id"`
	Method          string            `json:"method"`
	Path            string            `json:"path"`
	TargetWorker    string            `json:"target_worker"`
	State           string            `json:"state"`
	ResponseStatus  int               `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	Error           string            `json:"error,omitempty"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

// QueueSizeRequest binds the ?worker= query parameter.
type QueueSizeRequest struct {
	Worker string `query:"worker"`
}

// QueueSizeResponse reports a single worker_version's queue depth.
type QueueSizeResponse struct {
	Worker string `json:"worker"`
	Size   int64  `json:"size"`
}

// DispatchErrorResponse is the JSON body returned when dispatching a
// request fails, per the errors table in spec.md §6.
type DispatchErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}
