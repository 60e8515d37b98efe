// Package admin exposes the supervisor and the directory as a small REST API.
package admin

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"switchyard/internal/component"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/internal/supervisor"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/models"
	"switchyard/pkg/tracing"
)

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := apperrors.ToHTTPStatus(err)
	response := apperrors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
	supervisor Supervisor
	directory  Directory
	// shutdownWait bounds how long DELETE waits for a pipeline to stop.
	shutdownWait time.Duration
}

func NewHandler(sup Supervisor, dir Directory, shutdownWait time.Duration, log logger.Logger) *Handler {
	if shutdownWait <= 0 {
		shutdownWait = constants.DefaultRequestTimeout
	}
	return &Handler{
		BaseHandler:  BaseHandler{Logger: log},
		supervisor:   sup,
		directory:    dir,
		shutdownWait: shutdownWait,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		pipelines := v1.Group("/pipelines")
		{
			pipelines.GET("", h.ListPipelines)
			pipelines.POST("", h.SetupPipeline)
			pipelines.DELETE("/:id", h.ShutdownPipeline)
		}

		dir := v1.Group("/directory")
		{
			dir.GET("/:kind", h.Lookup)
			dir.DELETE("/:kind/:id", h.Deregister)
		}

		v1.POST("/dispatchers/:id/events", h.IngestEvent)
	}
}

// ListPipelines godoc
// @Summary      List pipelines
// @Description  Snapshot of every tracked pipeline and the last failure of each failed one
// @Tags         pipelines
// @Produce      json
// @Success      200  {array}   supervisor.Status
// @Failure      503  {object}  map[string]interface{}
// @Router       /pipelines [get]
func (h *Handler) ListPipelines(c *gin.Context) {
	statuses, err := h.supervisor.Pipelines(c.Request.Context())
	if err != nil {
		h.HandleError(c, apperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, statuses)
}

// SetupPipeline godoc
// @Summary      Set up a pipeline
// @Tags         pipelines
// @Accept       json
// @Produce      json
// @Param        pipeline  body      models.PipelineConfig  true  "Pipeline configuration"
// @Success      201       {object}  SetupResponse
// @Failure      400       {object}  map[string]interface{}
// @Failure      409       {object}  map[string]interface{}
// @Router       /pipelines [post]
func (h *Handler) SetupPipeline(c *gin.Context) {
	var req models.PipelineConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(apperrors.ErrValidation.WithCause(err)))
		return
	}

	res, err := h.supervisor.Setup(c.Request.Context(), &req)
	if err != nil {
		h.HandleError(c, apperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	if err := res.Err(); err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SetupResponse{PipelineID: req.PipelineID, Result: string(res)})
}

// ShutdownPipeline godoc
// @Summary      Shut down a pipeline
// @Description  Returns 202 when the pipeline has not stopped within the wait
// @Tags         pipelines
// @Produce      json
// @Param        id   path      string  true  "Pipeline ID"
// @Success      200  {object}  ShutdownResponse
// @Success      202  {object}  ShutdownResponse
// @Failure      404  {object}  map[string]interface{}
// @Router       /pipelines/{id} [delete]
func (h *Handler) ShutdownPipeline(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.shutdownWait)
	defer cancel()

	res, err := h.supervisor.Shutdown(ctx, id)
	switch {
	case err == nil:
	case res == supervisor.ShutdownOK && errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusAccepted, ShutdownResponse{PipelineID: id, Result: string(res), Stopped: false})
		return
	default:
		h.HandleError(c, apperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	if err := res.Err(); err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ShutdownResponse{PipelineID: id, Result: string(res), Stopped: true})
}

// Lookup resolves the comma separated ids query, or lists the whole kind
// when no ids are given.
// @Summary      Look up components
// @Tags         directory
// @Produce      json
// @Param        kind  path      string  true   "Component kind"
// @Param        ids   query     string  false  "Comma separated ids"
// @Success      200   {object}  LookupResponse
// @Failure      400   {object}  map[string]interface{}
// @Router       /directory/{kind} [get]
func (h *Handler) Lookup(c *gin.Context) {
	kind, ok := component.ParseKind(c.Param("kind"))
	if !ok {
		h.HandleError(c, apperrors.FromReason("MISSING_KIND", apperrors.ErrValidation).WithDetail("kind", c.Param("kind")))
		return
	}

	ids := node.ParseIDList(c.Query("ids"))
	if len(ids) == 0 {
		all, err := h.directory.IDs(c.Request.Context(), kind)
		if err != nil {
			h.HandleError(c, apperrors.ErrServiceUnavailable.WithCause(err))
			return
		}
		sort.Strings(all)
		c.JSON(http.StatusOK, LookupResponse{Kind: kind.String(), Found: all})
		return
	}

	found, err := h.directory.Lookup(c.Request.Context(), kind, ids)
	if err != nil {
		h.HandleError(c, apperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	resp := LookupResponse{Kind: kind.String(), Found: make([]string, 0, len(found))}
	for _, id := range ids {
		if _, ok := found[id]; ok {
			resp.Found = append(resp.Found, id)
		} else {
			resp.Missing = append(resp.Missing, id)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Deregister godoc
// @Summary      Deregister a component
// @Tags         directory
// @Produce      json
// @Param        kind  path      string  true  "Component kind"
// @Param        id    path      string  true  "Component ID"
// @Success      200   {object}  DeregisterResponse
// @Failure      400   {object}  map[string]interface{}
// @Router       /directory/{kind}/{id} [delete]
func (h *Handler) Deregister(c *gin.Context) {
	kind, ok := component.ParseKind(c.Param("kind"))
	if !ok {
		h.HandleError(c, apperrors.FromReason("MISSING_KIND", apperrors.ErrValidation).WithDetail("kind", c.Param("kind")))
		return
	}
	id := c.Param("id")

	res, err := h.directory.Deregister(c.Request.Context(), kind, id)
	if err != nil {
		h.HandleError(c, apperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	if err := res.Err(); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, DeregisterResponse{Kind: kind.String(), ID: id, Result: string(res)})
}

// IngestEvent hands one event to a registered dispatcher.
// @Summary      Ingest an event
// @Tags         dispatchers
// @Accept       json
// @Produce      json
// @Param        id     path      string              true  "Dispatcher ID"
// @Param        event  body      IngestEventRequest  true  "Event"
// @Success      202    {object}  IngestEventResponse
// @Failure      400    {object}  map[string]interface{}
// @Failure      404    {object}  map[string]interface{}
// @Router       /dispatchers/{id}/events [post]
func (h *Handler) IngestEvent(c *gin.Context) {
	id := c.Param("id")

	var req IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(apperrors.ErrValidation.WithCause(err)))
		return
	}

	b := models.NewEventMessageBuilder().
		WithID(req.ID).
		WithSourceID(req.SourceID).
		WithCollectorID(req.CollectorID).
		WithTimestamp(req.Timestamp).
		WithContent(req.Content)
	for k, v := range req.Fields {
		b.WithField(k, v)
	}
	msg := b.Build()
	if err := models.ValidateEventMessage(msg); err != nil {
		h.HandleError(c, apperrors.ErrValidation.WithCause(err))
		return
	}

	found, err := h.directory.Lookup(c.Request.Context(), component.KindDispatcher, []string{id})
	if err != nil {
		h.HandleError(c, apperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	dispatcher, ok := found[id]
	if !ok {
		h.HandleError(c, apperrors.FromReason("UNKNOWN_DISPATCHER", apperrors.ErrNotFound).WithDetail("dispatcher_id", id))
		return
	}

	tracing.InjectMessage(c.Request.Context(), msg)
	if err := dispatcher.Deliver(c.Request.Context(), msg); err != nil {
		h.HandleError(c, apperrors.ErrServiceUnavailable.WithCause(err))
		return
	}

	c.JSON(http.StatusAccepted, IngestEventResponse{DispatcherID: id, MessageID: msg.ID})
}
