package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/relaymesh/gatework"
)

func (a *API) health(ctx forge.Context, _ *HealthRequest) (*HealthResponse, error) {
	if err := a.dispatcher.Store().Ping(ctx.Context()); err != nil {
		return nil, gatework.ErrStoreUnavailable
	}
	resp := &HealthResponse{Status: "ok"}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) listRoutes(ctx forge.Context, _ *ListRoutesRequest) (*ListRoutesResponse, error) {
	routes, err := a.dispatcher.Store().ListAll(ctx.Context())
	if err != nil {
		return nil, err
	}
	resp := &ListRoutesResponse{Routes: routes}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) getJob(ctx forge.Context, _ *GetJobRequest) (*JobResponse, error) {
	requestID := ctx.Param("requestId")
	if requestID == "" {
		return nil, forge.BadRequest("request_id is required")
	}

	j, err := a.dispatcher.Store().GetJob(ctx.Context(), requestID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	resp := &JobResponse{
		RequestID:       j.RequestID,
		Method:          j.Method,
		Path:            j.Path,
		TargetWorker:    j.TargetWorker,
		State:           string(j.State),
		ResponseStatus:  j.ResponseStatus,
		ResponseHeaders: j.ResponseHeaders,
		Error:           j.Error,
		CreatedAt:       j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       j.UpdatedAt.Format(time.RFC3339),
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) deleteJob(ctx forge.Context, _ *DeleteJobRequest) (*struct{}, error) {
	requestID := ctx.Param("requestId")
	if requestID == "" {
		return nil, forge.BadRequest("request_id is required")
	}

	if err := a.dispatcher.Store().DeleteJob(ctx.Context(), requestID); err != nil {
		return nil, mapStoreError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) queueSize(ctx forge.Context, req *QueueSizeRequest) (*QueueSizeResponse, error) {
	if req.Worker == "" {
		return nil, forge.BadRequest("worker query parameter is required")
	}

	size, err := a.dispatcher.Store().QueueSize(ctx.Context(), req.Worker)
	if err != nil {
		return nil, err
	}
	resp := &QueueSizeResponse{Worker: req.Worker, Size: size}
	return resp, ctx.JSON(http.StatusOK, resp)
}

// mapStoreError converts gatework sentinel errors to Forge HTTP errors.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gatework.ErrJobNotFound) {
		return forge.NotFound(err.Error())
	}
	return err
}
