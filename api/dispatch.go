package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/relaymesh/gatework"
)

// dispatch proxies any request not matched by a fixed administrative
// route to the Dispatcher, translating its sentinel errors to HTTP status
// codes per the errors table.
func (a *API) dispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	query := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			// Multi-valued params collapse to the last value, per
			// spec.md §3's "query: mapping from string to string".
			query[k] = v[len(v)-1]
		}
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	status, respHeaders, respBody, requestID, err := a.dispatcher.Dispatch(r.Context(), r.Method, r.URL.Path, query, headers, body)
	if err != nil {
		a.writeDispatchError(w, err, requestID)
		return
	}

	for k, v := range respHeaders {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}

// errorTag names the taxonomy of gatework.Err* sentinels for the
// dispatch error JSON body, per spec.md §6/§7.
func errorTag(err error) string {
	switch {
	case errors.Is(err, gatework.ErrNoRoute):
		return "no_route"
	case errors.Is(err, gatework.ErrNoCandidate):
		return "no_candidate"
	case errors.Is(err, gatework.ErrDispatchTimeout):
		return "dispatch_timeout"
	case errors.Is(err, gatework.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, gatework.ErrBadRequest):
		return "bad_request"
	default:
		return "internal_error"
	}
}

func (a *API) writeDispatchError(w http.ResponseWriter, err error, requestID string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gatework.ErrNoRoute):
		status = http.StatusNotFound
	case errors.Is(err, gatework.ErrNoCandidate):
		status = http.StatusServiceUnavailable
	case errors.Is(err, gatework.ErrDispatchTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, gatework.ErrStoreUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, gatework.ErrBadRequest):
		status = http.StatusBadRequest
	default:
		a.logger.Error("dispatch failed", "error", err.Error(), "request_id", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(DispatchErrorResponse{
		Error:     errorTag(err),
		RequestID: requestID,
	})
}
